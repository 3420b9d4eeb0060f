package engine

import (
	"context"
	"time"

	"k8s.io/examples/AI/npubridge/pkg/errdefs"
	"k8s.io/klog/v2"
)

// LoadModelFile loads a model from disk into net.
func LoadModelFile(ctx context.Context, net Network, modelFile, metaFile string) error {
	log := klog.FromContext(ctx)

	startedAt := time.Now()
	if err := net.LoadFile(modelFile, metaFile); err != nil {
		return errdefs.Wrap(errdefs.ModelLoadFailure, err, "unable to load model from file %q", modelFile)
	}
	log.V(2).Info("loaded model", "file", modelFile, "meta", metaFile, "inputs", net.Inputs().Len(), "outputs", net.Outputs().Len(), "duration", time.Since(startedAt))
	return nil
}

// LoadModelData loads a model from memory into net.
func LoadModelData(ctx context.Context, net Network, model []byte, meta string) error {
	log := klog.FromContext(ctx)

	if len(model) == 0 {
		return errdefs.New(errdefs.InvalidArgument, "empty model data")
	}
	startedAt := time.Now()
	if err := net.LoadData(model, meta); err != nil {
		return errdefs.Wrap(errdefs.ModelLoadFailure, err, "unable to load model from memory")
	}
	log.V(2).Info("loaded model", "bytes", len(model), "inputs", net.Inputs().Len(), "outputs", net.Outputs().Len(), "duration", time.Since(startedAt))
	return nil
}

// Predict runs inference on inputs assigned beforehand through the input tensors.
// The returned outputs belong to net and must not be used after net is closed.
func Predict(ctx context.Context, net Network) (*Tensors, error) {
	log := klog.FromContext(ctx)

	startedAt := time.Now()
	if err := net.Predict(); err != nil {
		return nil, errdefs.Wrap(errdefs.PredictionFailure, err, "failed to predict")
	}
	outputs := net.Outputs()
	for _, t := range outputs.All() {
		t.touch()
	}
	log.V(4).Info("predicted", "duration", time.Since(startedAt))
	return outputs, nil
}

// PredictWith assigns one *Array per network input, then runs inference.
//
// Every input is validated before any of them is written, so a rejected
// input leaves all input tensors untouched.
func PredictWith(ctx context.Context, net Network, inputs ...any) (*Tensors, error) {
	netInputs := net.Inputs()
	if len(inputs) != netInputs.Len() {
		return nil, errdefs.New(errdefs.InputCountMismatch, "invalid number of inputs: expected %d inputs, got %d inputs", netInputs.Len(), len(inputs))
	}

	arrays := make([]*Array, len(inputs))
	dsts := make([][]byte, len(inputs))
	for i, input := range inputs {
		a, ok := input.(*Array)
		if !ok || a == nil {
			return nil, errdefs.New(errdefs.TypeMismatch, "input %d: input data must be a collection of arrays, got %T", i, input)
		}
		t := netInputs.items[i]
		if err := Validate(t, a); err != nil {
			return nil, err
		}
		dst, err := t.data()
		if err != nil {
			return nil, err
		}
		arrays[i] = a
		dsts[i] = dst
	}

	for i, a := range arrays {
		t := netInputs.items[i]
		convertInto(dsts[i], t.dtype, a)
		t.touch()
	}

	return Predict(ctx, net)
}
