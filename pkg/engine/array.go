package engine

import (
	"github.com/x448/float16"
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

// Element is the set of Go types an Array can hold.
type Element interface {
	uint8 | int8 | uint16 | int16 | uint32 | int32 | float16.Float16 | float32
}

// Array is an n-dimensional array owned by the caller, the source and
// destination of tensor data exchanges. Its bytes alias the caller's slice.
type Array struct {
	dtype types.DataType
	dims  []int
	data  []byte
}

func dataTypeOf[T Element]() types.DataType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return types.Uint8
	case int8:
		return types.Int8
	case uint16:
		return types.Uint16
	case int16:
		return types.Int16
	case uint32:
		return types.Uint32
	case int32:
		return types.Int32
	case float16.Float16:
		return types.Float16
	case float32:
		return types.Float32
	}
	return types.Invalid
}

func checkDims(n int, dims []int) error {
	count := 1
	for _, d := range dims {
		if d < 0 {
			return errdefs.New(errdefs.InvalidArgument, "negative dimension in (%s)", types.JoinDims(dims))
		}
		count *= d
	}
	if count != n {
		return errdefs.New(errdefs.InvalidArgument, "array of %d elements cannot have shape (%s)", n, types.JoinDims(dims))
	}
	return nil
}

// NewArray wraps data as an array with the given dimensions, without copying.
// With no dims the array is one-dimensional.
func NewArray[T Element](data []T, dims ...int) (*Array, error) {
	if len(dims) == 0 {
		dims = []int{len(data)}
	}
	if err := checkDims(len(data), dims); err != nil {
		return nil, err
	}
	return &Array{
		dtype: dataTypeOf[T](),
		dims:  append([]int(nil), dims...),
		data:  asBytes(data),
	}, nil
}

// NewArrayFromBytes wraps raw host-order bytes holding elements of dtype.
func NewArrayFromBytes(dtype types.DataType, raw []byte, dims ...int) (*Array, error) {
	size := dtype.ElementSize()
	if size == 0 {
		return nil, errdefs.New(errdefs.InvalidArgument, "invalid array data type %s", dtype)
	}
	if len(raw)%size != 0 {
		return nil, errdefs.New(errdefs.InvalidArgument, "%d bytes is not a whole number of %s elements", len(raw), dtype)
	}
	if len(dims) == 0 {
		dims = []int{len(raw) / size}
	}
	if err := checkDims(len(raw)/size, dims); err != nil {
		return nil, err
	}
	return &Array{
		dtype: dtype,
		dims:  append([]int(nil), dims...),
		data:  raw,
	}, nil
}

func (a *Array) DataType() types.DataType { return a.dtype }

// NDim returns the number of dimensions.
func (a *Array) NDim() int { return len(a.dims) }

// Dims returns a copy of the dimensions.
func (a *Array) Dims() []int { return append([]int(nil), a.dims...) }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.data) / a.dtype.ElementSize() }

// NBytes returns the size of the array data in bytes.
func (a *Array) NBytes() int { return len(a.data) }

// Bytes returns the array data, aliasing the wrapped slice.
func (a *Array) Bytes() []byte { return a.data }

// ArrayData returns the elements of a as a []T aliasing its data.
func ArrayData[T Element](a *Array) ([]T, error) {
	if want := dataTypeOf[T](); want != a.dtype {
		return nil, errdefs.New(errdefs.TypeMismatch, "array holds %s elements, not %s", a.dtype, want)
	}
	return asSlice[T](a.data), nil
}
