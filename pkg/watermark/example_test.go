package watermark_test

import (
	"fmt"

	"github.com/ava-labs/watermarkset/pkg/watermark"
)

func Example() {
	s := watermark.New[uint64]()
	for _, v := range []uint64{1, 0, 3, 2} {
		_ = s.Insert(v)
	}
	fmt.Println(s.Contains(2), s.Contains(4))

	next, _ := s.LowestMissing()
	size, _ := s.Size()
	fmt.Println(s.Watermark(), next, size)
	// Output:
	// true false
	// 0 4 4
}

func ExampleNewFrom() {
	s := watermark.NewFrom[uint32](1385)
	fmt.Println(s.Contains(1384), s.Contains(1385))
	// Output: true false
}
