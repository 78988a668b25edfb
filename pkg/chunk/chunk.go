// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk splits payloads into ordered, size-bounded parts.
package chunk

import (
	"iter"
)

// DefaultSize is the S3 minimum size of a non-final multipart part, so every
// chunk but the last is always acceptable to the store.
const DefaultSize = 5 << 20

// Range locates one part inside a payload of known length.
type Range struct {
	PartNumber int
	Offset     int64
	Length     int64
}

// Count returns how many parts a payload of total bytes splits into.
func Count(total, size int64) int {
	if total <= 0 {
		return 0
	}
	size = normalize(size)
	return int((total + size - 1) / size)
}

// Ranges yields the part ranges for a payload of total bytes. Part numbers
// start at 1. Every range except the last is exactly size bytes long.
func Ranges(total, size int64) iter.Seq2[int, Range] {
	size = normalize(size)
	return func(yield func(int, Range) bool) {
		part := 1
		for off := int64(0); off < total; off += size {
			n := min(size, total-off)
			if !yield(part, Range{PartNumber: part, Offset: off, Length: n}) {
				return
			}
			part++
		}
	}
}

// Split yields (part number, slice) pairs over buf. The sequence is lazy and
// can be ranged over any number of times. Slices alias buf and are capacity
// capped so appending to one never overwrites the next. Empty input yields
// nothing. A non-positive size means DefaultSize.
func Split(buf []byte, size int) iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		for part, r := range Ranges(int64(len(buf)), int64(size)) {
			end := r.Offset + r.Length
			if !yield(part, buf[r.Offset:end:end]) {
				return
			}
		}
	}
}

func normalize(size int64) int64 {
	if size <= 0 {
		return DefaultSize
	}
	return size
}
