package engine

import (
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

// Validate decides whether a can be written into t.
//
// An array either has the same rank as the tensor, or omits the leading
// batch axis, in which case the tensor batch size must be 1. Feeding a
// batch into a tensor of batch size 1 is a BatchDimensionConflict in both
// forms; any other axis disagreement is a ShapeMismatch. Mapped axes must
// match exactly, the byte sizes must match, and the array must hold uint8,
// int16 or float32 elements. Nothing is written.
func Validate(t *Tensor, a *Array) error {
	return validateArray(t.Shape(), t.Size(), a)
}

func validateArray(shape types.Shape, size int, a *Array) error {
	tensorDims := shape.Dims()
	n, d := len(tensorDims), a.NDim()
	if d > n {
		return errdefs.New(errdefs.DimensionMismatch, "dimensions mismatch: expected %d dimensions, got %d", n, d)
	}
	if d < n-1 {
		return errdefs.New(errdefs.DimensionMismatch, "dimensions mismatch: expected %d dimensions, got %d", n-1, d)
	}

	offset := 0
	if d == n-1 {
		if tensorDims[0] != 1 {
			return errdefs.New(errdefs.BatchDimensionConflict,
				"shape mismatch: cannot assign input with shape (%s) to tensor with batch dimension > 1", types.JoinDims(a.dims))
		}
		offset = 1
	}
	for i, dim := range a.dims {
		if dim == int(tensorDims[i+offset]) {
			continue
		}
		if i == 0 && offset == 0 && n > 1 && tensorDims[0] == 1 {
			return errdefs.New(errdefs.BatchDimensionConflict,
				"shape mismatch: cannot assign input with batch size %d to tensor with batch size %d", dim, tensorDims[0])
		}
		return errdefs.New(errdefs.ShapeMismatch, "shape mismatch: expected (%s), got (%s)",
			types.JoinDims(tensorDims[offset:]), types.JoinDims(a.dims))
	}

	if a.NBytes() != size {
		return errdefs.New(errdefs.SizeMismatch, "size mismatch: expected %d bytes, got %d bytes", size, a.NBytes())
	}

	switch a.dtype {
	case types.Uint8, types.Int16, types.Float32:
		return nil
	}
	return errdefs.New(errdefs.UnsupportedType, "unsupported data type %s: data must be uint8, int16 or float32", a.dtype)
}
