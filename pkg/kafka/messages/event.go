package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	// SequenceHeader carries the decimal sequence number of an event so consumers can
	// deduplicate without decoding the payload.
	SequenceHeader = "x-sequence"

	EventType    = "sequence"
	EventVersion = 1
)

var (
	ErrMissingSequence = errors.New("missing sequence header")
	ErrInvalidSequence = errors.New("invalid sequence header")
)

// Event is the envelope the emitter publishes for every sequence number.
type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"version"`
	Sequence  uint64          `json:"sequence"`
	EmittedAt time.Time       `json:"emittedAt"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent returns a current-version event for seq.
func NewEvent(seq uint64, emittedAt time.Time, payload json.RawMessage) *Event {
	return &Event{
		Type:      EventType,
		Version:   EventVersion,
		Sequence:  seq,
		EmittedAt: emittedAt.UTC(),
		Payload:   payload,
	}
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Event) Unmarshal(data []byte) error {
	if err := json.Unmarshal(data, e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if e.Type != EventType {
		return fmt.Errorf("unexpected event type %q", e.Type)
	}
	if e.Version > EventVersion {
		return fmt.Errorf("unsupported event version %d", e.Version)
	}
	return nil
}

// EncodeSequence formats seq for SequenceHeader.
func EncodeSequence(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}

// SequenceFromHeaders returns the sequence number carried in SequenceHeader. When the
// header appears more than once the last value wins, matching Kafka's append semantics.
func SequenceFromHeaders(headers []kafka.Header) (uint64, error) {
	var (
		raw   []byte
		found bool
	)
	for _, h := range headers {
		if h.Key == SequenceHeader {
			raw, found = h.Value, true
		}
	}
	if !found {
		return 0, ErrMissingSequence
	}
	seq, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidSequence, raw, err)
	}
	return seq, nil
}

// SequenceOf returns the sequence number of msg, from its header if present and from the
// decoded event otherwise.
func SequenceOf(msg *kafka.Message) (uint64, error) {
	seq, err := SequenceFromHeaders(msg.Headers)
	if err == nil {
		return seq, nil
	}
	if !errors.Is(err, ErrMissingSequence) {
		return 0, err
	}
	var ev Event
	if err := ev.Unmarshal(msg.Value); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMissingSequence, err)
	}
	return ev.Sequence, nil
}
