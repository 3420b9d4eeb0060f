package types

import (
	"iter"
	"slices"
	"strconv"
	"strings"

	"k8s.io/examples/AI/npubridge/pkg/errdefs"
)

// Shape is an immutable sequence of dimension sizes.
// The meaning of each axis is given by the Layout of the tensor owning it.
type Shape struct {
	dims []int32
}

func NewShape(dims ...int32) Shape {
	return Shape{dims: slices.Clone(dims)}
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s.dims) }

// At returns dimension i.
func (s Shape) At(i int) (int32, error) {
	if i < 0 || i >= len(s.dims) {
		return 0, errdefs.New(errdefs.IndexOutOfRange, "shape index %d out of range [0, %d)", i, len(s.dims))
	}
	return s.dims[i], nil
}

// Dims returns a copy of the dimensions.
func (s Shape) Dims() []int32 { return slices.Clone(s.dims) }

// All iterates over the dimensions in order.
func (s Shape) All() iter.Seq2[int, int32] {
	return func(yield func(int, int32) bool) {
		for i, d := range s.dims {
			if !yield(i, d) {
				return
			}
		}
	}
}

// ItemCount is the product of all dimensions, 0 for an empty shape.
func (s Shape) ItemCount() int {
	if len(s.dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range s.dims {
		n *= int(d)
	}
	return n
}

// Valid reports whether every dimension is positive.
func (s Shape) Valid() bool {
	for _, d := range s.dims {
		if d <= 0 {
			return false
		}
	}
	return true
}

func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s.dims, other.dims)
}

// String formats the shape as "Shape(1, 3, 224, 224)".
func (s Shape) String() string {
	return "Shape(" + JoinDims(s.dims) + ")"
}

// JoinDims formats dimensions as a comma separated list.
func JoinDims[T int | int32](dims []T) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ", ")
}
