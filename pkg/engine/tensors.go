package engine

import (
	"iter"

	"k8s.io/examples/AI/npubridge/pkg/errdefs"
)

// Tensors is a fixed-length ordered collection of tensors, such as the
// inputs or outputs of a network. It refers to tensors owned by the network.
type Tensors struct {
	items []*Tensor
}

func NewTensors(items ...*Tensor) *Tensors {
	return &Tensors{items: append([]*Tensor(nil), items...)}
}

// Len returns the number of tensors.
func (ts *Tensors) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.items)
}

// At returns tensor i.
func (ts *Tensors) At(i int) (*Tensor, error) {
	if i < 0 || i >= ts.Len() {
		return nil, errdefs.New(errdefs.IndexOutOfRange, "tensor index %d out of range [0, %d)", i, ts.Len())
	}
	return ts.items[i], nil
}

// All iterates over the tensors in index order.
func (ts *Tensors) All() iter.Seq2[int, *Tensor] {
	return func(yield func(int, *Tensor) bool) {
		for i := 0; i < ts.Len(); i++ {
			if !yield(i, ts.items[i]) {
				return
			}
		}
	}
}

// ByName returns the tensor with the given name.
func (ts *Tensors) ByName(name string) (*Tensor, bool) {
	for _, t := range ts.All() {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}
