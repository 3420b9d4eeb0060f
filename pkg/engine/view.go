package engine

import (
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

// View is a borrowed float32 view of a tensor's data, shaped like the tensor.
//
// For float32 tensors the view aliases the tensor buffer without copying.
// The tensor keeps ownership of the memory: once the tensor is mutated or
// closed, or CPU access to its buffer is revoked, the view is stale and Data
// fails.
type View struct {
	tensor     *Tensor
	generation uint64
	shape      types.Shape
	data       []float32
}

// Export returns a view of the current tensor data.
func (t *Tensor) Export() (*View, error) {
	data, err := t.AsFloat()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.RuntimeFailure, err, "tensor %q data is not available", t.name)
	}
	return &View{
		tensor:     t,
		generation: t.generation,
		shape:      t.shape,
		data:       data,
	}, nil
}

// Shape returns the shape of the source tensor.
func (v *View) Shape() types.Shape { return v.shape }

// Len returns the number of elements in the view.
func (v *View) Len() int { return len(v.data) }

// Valid reports whether the source tensor is unchanged since the view was
// exported and its buffer is still CPU accessible.
func (v *View) Valid() bool {
	t := v.tensor
	if t.closed || t.generation != v.generation {
		return false
	}
	return t.buffer != nil && t.buffer.cpuAccess
}

// Data returns the viewed values.
func (v *View) Data() ([]float32, error) {
	if !v.Valid() {
		return nil, errdefs.New(errdefs.InvalidState, "view of tensor %q is stale", v.tensor.name)
	}
	return v.data, nil
}
