package checkpointer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

const (
	checkpointPrefix = "checkpoint/"
	versionKey       = "meta/version"
	storeVersion     = 1
)

var (
	ErrCorruptCheckpoint = errors.New("corrupt checkpoint value")
	ErrUnknownVersion    = errors.New("unknown checkpoint store version")
)

var _ Checkpointer = (*LevelDB)(nil)

// LevelDB keeps one 8-byte big-endian checkpoint per stream in a LevelDB database.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens the database described by cfg, creating it if needed.
func NewLevelDB(cfg LevelDBConfig) (*LevelDB, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if cfg.InMemory {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(cfg.Path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDB{db: db}, nil
}

// Initialize stamps the store version on first use and rejects stores written by an
// incompatible version.
func (l *LevelDB) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := l.db.Get([]byte(versionKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return l.db.Put([]byte(versionKey), encodeUint64(storeVersion), &opt.WriteOptions{Sync: true})
	}
	if err != nil {
		return fmt.Errorf("read store version: %w", err)
	}
	v, err := decodeUint64(raw)
	if err != nil {
		return fmt.Errorf("read store version: %w", err)
	}
	if v != storeVersion {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
	return nil
}

func (l *LevelDB) Write(ctx context.Context, stream string, lowest uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.db.Put(checkpointKey(stream), encodeUint64(lowest), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("write checkpoint for %q: %w", stream, err)
	}
	return nil
}

func (l *LevelDB) Read(ctx context.Context, stream string) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	raw, err := l.db.Get(checkpointKey(stream), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read checkpoint for %q: %w", stream, err)
	}
	lowest, err := decodeUint64(raw)
	if err != nil {
		return 0, false, fmt.Errorf("read checkpoint for %q: %w", stream, err)
	}
	return lowest, true, nil
}

func (l *LevelDB) Delete(ctx context.Context, stream string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.db.Delete(checkpointKey(stream), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("delete checkpoint for %q: %w", stream, err)
	}
	return nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

func checkpointKey(stream string) []byte {
	return []byte(checkpointPrefix + stream)
}

func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeUint64(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: %d bytes", ErrCorruptCheckpoint, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}
