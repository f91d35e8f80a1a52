package service

import (
	"iter"
	"slices"
)

// Split lazily yields consecutive chunks of items holding at most size
// elements each, in input order. The last chunk may be shorter and
// an empty input yields nothing. Split panics if size is less than 1.
func Split[T any](items []T, size int) iter.Seq[[]T] {
	return slices.Chunk(items, size)
}
