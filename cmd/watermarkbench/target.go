package main

import (
	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/ava-labs/watermarkset/pkg/watermark"
)

// target is a set implementation under measurement.
type target interface {
	Insert(v uint64) error
	Contains(v uint64) bool
	// SizeBytes estimates the memory held by the set's contents.
	SizeBytes() uint64
}

type targetFactory struct {
	name string
	new  func() target
}

func targets() []targetFactory {
	return []targetFactory{
		{"watermark", func() target { return &watermarkTarget{set: watermark.New[uint64]()} }},
		{"roaring64", func() target { return &roaringTarget{bm: roaring64.New()} }},
	}
}

type watermarkTarget struct {
	set *watermark.Set[uint64]
}

func (t *watermarkTarget) Insert(v uint64) error  { return t.set.Insert(v) }
func (t *watermarkTarget) Contains(v uint64) bool { return t.set.Contains(v) }

// SizeBytes counts the watermark plus one word per window bucket.
func (t *watermarkTarget) SizeBytes() uint64 {
	return 8 + uint64(t.set.WindowLen())*8
}

type roaringTarget struct {
	bm *roaring64.Bitmap
}

func (t *roaringTarget) Insert(v uint64) error {
	t.bm.Add(v)
	return nil
}

func (t *roaringTarget) Contains(v uint64) bool { return t.bm.Contains(v) }

func (t *roaringTarget) SizeBytes() uint64 { return t.bm.GetSizeInBytes() }
