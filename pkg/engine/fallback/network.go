// Package fallback is an in-memory inference engine. It loads model packages
// for their tensor metadata and computes outputs with a pluggable Kernel.
package fallback

import (
	"fmt"
	"os"

	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

// Version is the runtime API level the fallback engine implements.
var Version = types.Version{Major: 3, Minor: 2, Subminor: 0}

// Kernel computes the outputs of a network from its inputs.
type Kernel func(inputs, outputs *engine.Tensors) error

type Network struct {
	inputs  *engine.Tensors
	outputs *engine.Tensors
	loaded  bool

	kernel Kernel

	// loadedGenerations are the input generations right after loading,
	// used to detect inputs that were never assigned.
	loadedGenerations []uint64
}

var _ engine.Network = (*Network)(nil)

type Option func(*Network)

// WithKernel replaces the default PassThrough kernel.
func WithKernel(kernel Kernel) Option {
	return func(n *Network) {
		n.kernel = kernel
	}
}

// NewNetwork returns a network with no model loaded.
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		inputs:  engine.NewTensors(),
		outputs: engine.NewTensors(),
		kernel:  PassThrough,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Network) Inputs() *engine.Tensors  { return n.inputs }
func (n *Network) Outputs() *engine.Tensors { return n.outputs }
func (n *Network) Version() types.Version   { return Version }

func (n *Network) LoadFile(modelFile, metaFile string) error {
	model, err := os.ReadFile(modelFile)
	if err != nil {
		return fmt.Errorf("reading model file: %w", err)
	}
	var meta []byte
	if metaFile != "" {
		meta, err = os.ReadFile(metaFile)
		if err != nil {
			return fmt.Errorf("reading metadata file: %w", err)
		}
	}
	return n.load(model, meta)
}

func (n *Network) LoadData(model []byte, meta string) error {
	return n.load(model, []byte(meta))
}

func (n *Network) load(model, meta []byte) error {
	var md *Metadata
	var err error
	if len(meta) != 0 {
		if err := checkPackage(model); err != nil {
			return err
		}
		md, err = ParseMetadata(meta)
	} else {
		md, err = ReadModelMetadata(model)
	}
	if err != nil {
		return err
	}

	inputs, err := buildTensors(md.Inputs)
	if err != nil {
		return fmt.Errorf("building inputs: %w", err)
	}
	outputs, err := buildTensors(md.Outputs)
	if err != nil {
		return fmt.Errorf("building outputs: %w", err)
	}

	n.closeTensors()
	n.inputs = engine.NewTensors(inputs...)
	n.outputs = engine.NewTensors(outputs...)
	n.loadedGenerations = make([]uint64, len(inputs))
	for i, t := range inputs {
		n.loadedGenerations[i] = t.Generation()
	}
	n.loaded = true
	return nil
}

func (n *Network) Predict() error {
	if !n.loaded {
		return fmt.Errorf("no model loaded")
	}
	for i, t := range n.inputs.All() {
		if t.Generation() == n.loadedGenerations[i] {
			return fmt.Errorf("input %d (%q) has not been assigned", i, t.Name())
		}
	}
	return n.kernel(n.inputs, n.outputs)
}

func (n *Network) closeTensors() {
	for _, t := range n.inputs.All() {
		t.Close()
	}
	for _, t := range n.outputs.All() {
		t.Close()
	}
}

// Close releases all tensors; the network returns to its empty state.
func (n *Network) Close() error {
	n.closeTensors()
	n.inputs = engine.NewTensors()
	n.outputs = engine.NewTensors()
	n.loadedGenerations = nil
	n.loaded = false
	return nil
}

// PassThrough copies input i into output i when both have the same data type
// and item count, and zeroes every other output.
func PassThrough(inputs, outputs *engine.Tensors) error {
	for i, out := range outputs.All() {
		if in, err := inputs.At(i); err == nil && in.DataType() == out.DataType() && in.ItemCount() == out.ItemCount() {
			if err := out.AssignTensor(in); err != nil {
				return err
			}
			continue
		}
		if err := out.AssignBytes(make([]byte, out.Size())); err != nil {
			return err
		}
	}
	return nil
}
