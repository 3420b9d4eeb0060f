package engine

import (
	"io"

	"k8s.io/examples/AI/npubridge/pkg/types"
)

// Network is an inference engine instance. It owns the input and output
// tensors of the loaded model.
type Network interface {
	io.Closer

	// LoadFile loads a model file, with an optional separate metadata file.
	LoadFile(modelFile, metaFile string) error
	// LoadData loads a model from memory, with optional metadata.
	LoadData(model []byte, meta string) error

	Inputs() *Tensors
	Outputs() *Tensors

	// Predict runs inference on the current content of the input tensors.
	Predict() error

	Version() types.Version
}
