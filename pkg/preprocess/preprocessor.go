// Package preprocess places input data (images, raw pixels) into the input
// tensors of a network.
package preprocess

import (
	"context"

	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
	"k8s.io/examples/AI/npubridge/pkg/types"
	"k8s.io/klog/v2"
)

// Engine writes input data into inputs, starting at inputs[startIndex], and
// returns the region of the data that was placed, in data coordinates.
type Engine interface {
	Assign(inputs *engine.Tensors, data *InputData, startIndex int) (types.Rect, error)
}

// noCopy may be embedded into structs which must not be copied after first use.
// See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Preprocessor validates input data and delegates its placement to the
// Engine it owns. Use it through a pointer.
type Preprocessor struct {
	_ noCopy

	engine Engine
}

// New returns a Preprocessor backed by an ImageEngine.
func New() *Preprocessor {
	return NewWithEngine(NewImageEngine())
}

func NewWithEngine(e Engine) *Preprocessor {
	return &Preprocessor{engine: e}
}

// Assign writes data into inputs starting at startIndex and returns the
// assigned region, used to map results back to the original data.
func (p *Preprocessor) Assign(ctx context.Context, inputs *engine.Tensors, data *InputData, startIndex int) (types.Rect, error) {
	log := klog.FromContext(ctx)

	if data.Empty() {
		return types.Rect{}, errdefs.New(errdefs.InvalidArgument, "invalid input data")
	}
	rect, err := p.engine.Assign(inputs, data, startIndex)
	if err != nil {
		return types.Rect{}, errdefs.Wrap(errdefs.RuntimeFailure, err, "error while preprocessing data")
	}
	log.V(4).Info("assigned input data", "type", data.Type(), "bytes", data.Size(), "startIndex", startIndex, "rect", rect)
	return rect, nil
}

// AssignFile loads an encoded image from filename and assigns it.
func (p *Preprocessor) AssignFile(ctx context.Context, inputs *engine.Tensors, filename string, startIndex int) (types.Rect, error) {
	data, err := LoadInputData(filename)
	if err != nil {
		return types.Rect{}, errdefs.Wrap(errdefs.InvalidArgument, err, "invalid input image: %s", filename)
	}
	if data.Empty() {
		return types.Rect{}, errdefs.New(errdefs.InvalidArgument, "invalid input image: %s", filename)
	}
	return p.Assign(ctx, inputs, data, startIndex)
}

// AssignRaw assigns raw 8-bit pixels described by shape and layout.
func (p *Preprocessor) AssignRaw(ctx context.Context, inputs *engine.Tensors, buf []byte, shape types.Shape, layout types.Layout, startIndex int) (types.Rect, error) {
	return p.Assign(ctx, inputs, NewRawInputData(buf, shape, layout), startIndex)
}
