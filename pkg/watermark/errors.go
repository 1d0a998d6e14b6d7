package watermark

import "errors"

var (
	// ErrWatermarkOverflow is returned when absorbing a saturated bucket would raise the
	// watermark past the largest value representable by the element type.
	ErrWatermarkOverflow = errors.New("watermark overflow")
	// ErrAddressingOverflow is returned when the distance between a value and the watermark
	// cannot be expressed as a window index.
	ErrAddressingOverflow = errors.New("addressing overflow")
)
