package engine

import (
	"unsafe"

	"github.com/x448/float16"
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

// Quantization maps stored integer values to real values: real = (v - ZeroPoint) * Scale.
type Quantization struct {
	Scale     float32
	ZeroPoint int32
}

// Tensor is a named, shaped and typed view over at most one Buffer.
//
// Tensors are created by a Network when a model is loaded and live as long
// as the network. Every mutation bumps the tensor generation, which
// invalidates the views exported before it.
type Tensor struct {
	name   string
	shape  types.Shape
	layout types.Layout
	dtype  types.DataType
	quant  *Quantization

	buffer *Buffer

	generation uint64
	closed     bool

	// floatData holds the float representation of non-float32 tensors,
	// refreshed by every AsFloat call.
	floatData []float32
}

type TensorOption func(*Tensor)

// WithQuantization marks the tensor as holding quantized values.
func WithQuantization(q Quantization) TensorOption {
	return func(t *Tensor) {
		t.quant = &q
	}
}

// NewTensor creates a tensor with its own CPU-accessible buffer.
func NewTensor(name string, dtype types.DataType, layout types.Layout, shape types.Shape, opts ...TensorOption) (*Tensor, error) {
	if dtype.ElementSize() == 0 {
		return nil, errdefs.New(errdefs.InvalidArgument, "tensor %q: invalid data type %s", name, dtype)
	}
	if !shape.Valid() {
		return nil, errdefs.New(errdefs.InvalidArgument, "tensor %q: invalid shape %s", name, shape)
	}
	t := &Tensor{
		name:   name,
		shape:  shape,
		layout: layout,
		dtype:  dtype,
	}
	for _, opt := range opts {
		opt(t)
	}
	b := NewBuffer(t.Size())
	b.attached = t
	t.buffer = b
	return t, nil
}

func (t *Tensor) Name() string                { return t.name }
func (t *Tensor) Shape() types.Shape          { return t.shape }
func (t *Tensor) Layout() types.Layout        { return t.layout }
func (t *Tensor) DataType() types.DataType    { return t.dtype }
func (t *Tensor) Quantization() *Quantization { return t.quant }

// ItemCount returns the number of elements.
func (t *Tensor) ItemCount() int {
	if t.shape.Rank() == 0 {
		return 1
	}
	return t.shape.ItemCount()
}

// Size returns the size of the tensor data in bytes.
func (t *Tensor) Size() int { return t.ItemCount() * t.dtype.ElementSize() }

// IsScalar reports whether the tensor holds a single element.
func (t *Tensor) IsScalar() bool { return t.ItemCount() == 1 }

// Generation counts the mutations of the tensor.
func (t *Tensor) Generation() uint64 { return t.generation }

func (t *Tensor) touch() {
	t.generation++
	t.floatData = nil
}

// Buffer returns the attached buffer.
func (t *Tensor) Buffer() (*Buffer, error) {
	if t.closed {
		return nil, errdefs.New(errdefs.InvalidState, "tensor %q is closed", t.name)
	}
	if t.buffer == nil {
		return nil, errdefs.New(errdefs.InvalidState, "tensor %q has no buffer", t.name)
	}
	return t.buffer, nil
}

// SetBuffer attaches b to the tensor, replacing the current buffer without
// freeing it. A nil b detaches the current buffer.
func (t *Tensor) SetBuffer(b *Buffer) error {
	if t.closed {
		return errdefs.New(errdefs.RuntimeFailure, "tensor %q is closed", t.name)
	}
	if b == t.buffer {
		return nil
	}
	if b != nil {
		if b.attached != nil {
			return errdefs.New(errdefs.RuntimeFailure, "buffer is already attached to tensor %q", b.attached.name)
		}
		if b.Size() != t.Size() {
			return errdefs.New(errdefs.RuntimeFailure, "tensor %q: buffer size %d does not match tensor size %d", t.name, b.Size(), t.Size())
		}
		b.attached = t
	}
	if t.buffer != nil {
		t.buffer.attached = nil
	}
	t.buffer = b
	t.touch()
	return nil
}

// Close detaches the buffer and makes every further access fail.
func (t *Tensor) Close() error {
	if t.closed {
		return nil
	}
	if t.buffer != nil {
		t.buffer.attached = nil
		t.buffer = nil
	}
	t.closed = true
	t.touch()
	return nil
}

// data returns the attached bytes if the CPU may access them.
func (t *Tensor) data() ([]byte, error) {
	if t.closed {
		return nil, errdefs.New(errdefs.RuntimeFailure, "tensor %q is closed", t.name)
	}
	if t.buffer == nil {
		return nil, errdefs.New(errdefs.RuntimeFailure, "tensor %q has no buffer attached", t.name)
	}
	if !t.buffer.cpuAccess {
		return nil, errdefs.New(errdefs.RuntimeFailure, "tensor %q: buffer is not CPU accessible", t.name)
	}
	return t.buffer.data, nil
}

// Bytes returns the raw tensor data. The slice aliases the attached buffer.
func (t *Tensor) Bytes() ([]byte, error) {
	return t.data()
}

// AssignBytes copies raw bytes into the tensor.
func (t *Tensor) AssignBytes(raw []byte) error {
	if len(raw) != t.Size() {
		return errdefs.New(errdefs.SizeMismatch, "size mismatch: expected %d bytes, got %d bytes", t.Size(), len(raw))
	}
	dst, err := t.data()
	if err != nil {
		return errdefs.Wrap(errdefs.RuntimeFailure, err, "failed to assign raw data to tensor")
	}
	copy(dst, raw)
	t.touch()
	return nil
}

// AssignScalar fills a single-element tensor with value, saturating to the
// tensor data type.
func (t *Tensor) AssignScalar(value int32) error {
	if !t.IsScalar() {
		return errdefs.New(errdefs.RuntimeFailure, "failed to assign scalar data to tensor %q with shape %s", t.name, t.shape)
	}
	dst, err := t.data()
	if err != nil {
		return errdefs.Wrap(errdefs.RuntimeFailure, err, "failed to assign scalar data to tensor")
	}
	switch t.dtype {
	case types.Byte, types.Uint8:
		dst[0] = uint8(clamp(int64(value), 0, 255))
	case types.Int8:
		asSlice[int8](dst)[0] = int8(clamp(int64(value), -128, 127))
	case types.Int16:
		asSlice[int16](dst)[0] = int16(clamp(int64(value), -1<<15, 1<<15-1))
	case types.Uint16:
		asSlice[uint16](dst)[0] = uint16(clamp(int64(value), 0, 1<<16-1))
	case types.Int32:
		asSlice[int32](dst)[0] = value
	case types.Uint32:
		asSlice[uint32](dst)[0] = uint32(clamp(int64(value), 0, 1<<32-1))
	case types.Float16:
		asSlice[float16.Float16](dst)[0] = float16.Fromfloat32(float32(value))
	case types.Float32:
		asSlice[float32](dst)[0] = float32(value)
	}
	t.touch()
	return nil
}

// AssignTensor copies the data of src, which must have the same data type and
// item count.
func (t *Tensor) AssignTensor(src *Tensor) error {
	if src == t {
		return nil
	}
	if src.dtype != t.dtype || src.ItemCount() != t.ItemCount() {
		return errdefs.New(errdefs.RuntimeFailure, "failed to assign tensor %q (%s %s) to tensor %q (%s %s)",
			src.name, src.dtype, src.shape, t.name, t.dtype, t.shape)
	}
	from, err := src.data()
	if err != nil {
		return errdefs.Wrap(errdefs.RuntimeFailure, err, "failed to assign tensor data to tensor")
	}
	dst, err := t.data()
	if err != nil {
		return errdefs.Wrap(errdefs.RuntimeFailure, err, "failed to assign tensor data to tensor")
	}
	copy(dst, from)
	t.touch()
	return nil
}

// AssignArray validates a against the tensor and copies its elements in.
func (t *Tensor) AssignArray(a *Array) error {
	if err := Validate(t, a); err != nil {
		return err
	}
	dst, err := t.data()
	if err != nil {
		return errdefs.Wrap(errdefs.RuntimeFailure, err, "failed to assign %s array data to tensor", a.dtype)
	}
	convertInto(dst, t.dtype, a)
	t.touch()
	return nil
}

// AsFloat returns the tensor data as float32 values. For float32 tensors the
// slice aliases the attached buffer. Other types are converted, applying the
// tensor quantization if any, into a cache owned by the tensor.
func (t *Tensor) AsFloat() ([]float32, error) {
	src, err := t.data()
	if err != nil {
		return nil, err
	}
	if len(src) == 0 {
		return nil, errdefs.New(errdefs.RuntimeFailure, "tensor %q data is empty", t.name)
	}
	if t.dtype == types.Float32 && uintptr(unsafe.Pointer(&src[0]))%unsafe.Alignof(float32(0)) == 0 {
		return asSlice[float32](src), nil
	}
	t.floatData = toFloat(t.floatData, src, t.dtype, t.quant)
	return t.floatData, nil
}
