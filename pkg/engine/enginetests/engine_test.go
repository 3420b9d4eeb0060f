package enginetests

import (
	"math"
	"testing"

	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/engine/fallback"
	"k8s.io/klog/v2/ktesting"
)

// rmsNorm is a kernel normalizing input 0 into output 0.
func rmsNorm(inputs, outputs *engine.Tensors) error {
	in, err := inputs.At(0)
	if err != nil {
		return err
	}
	out, err := outputs.At(0)
	if err != nil {
		return err
	}
	values, err := in.AsFloat()
	if err != nil {
		return err
	}

	epsilon := 1e-5
	sumX2 := 0.0
	for _, v := range values {
		sumX2 += float64(v) * float64(v)
	}
	rms := 1.0 / math.Sqrt(sumX2/float64(len(values))+epsilon)
	result := make([]float32, len(values))
	for i, v := range values {
		result[i] = float32(float64(v) * rms)
	}
	a, err := engine.NewArray(result)
	if err != nil {
		return err
	}
	return out.AssignArray(a)
}

func TestEngine(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)

	model, err := fallback.EncodeModel(&fallback.Metadata{
		Inputs:  map[string]fallback.TensorInfo{"0": {Name: "x", DType: "float32", Shape: []int32{1, 3}}},
		Outputs: map[string]fallback.TensorInfo{"0": {Name: "y", DType: "float32", Shape: []int32{1, 3}}},
	})
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}

	net := fallback.NewNetwork(fallback.WithKernel(rmsNorm))
	if err := engine.LoadModelData(ctx, net, model, ""); err != nil {
		t.Fatalf("failed to load model: %v", err)
	}

	input, err := engine.NewArray([]float32{1, 2, 3})
	if err != nil {
		t.Fatalf("failed to create input: %v", err)
	}
	outputs, err := engine.PredictWith(ctx, net, input)
	if err != nil {
		t.Fatalf("failed to predict: %v", err)
	}

	if outputs.Len() != 1 {
		t.Fatalf("expected 1 output, got %d", outputs.Len())
	}
	out, err := outputs.At(0)
	if err != nil {
		t.Fatalf("getting output: %v", err)
	}
	view, err := out.Export()
	if err != nil {
		t.Fatalf("exporting output: %v", err)
	}
	values, err := view.Data()
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	t.Logf("values: %v", values)

	if err := net.Close(); err != nil {
		t.Fatalf("failed to close network: %v", err)
	}
	if _, err := view.Data(); err == nil {
		t.Fatalf("expected view to be stale after close")
	}

	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(values))
	}
	expected := []float32{0.46290955, 0.9258191, 1.3887286}
	if !FloatingPointEqual(values, expected) {
		t.Errorf("expected %+v, got %+v", expected, values)
	}
}

func FloatingPointEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, value := range a {
		if math.Abs(float64(value-b[i])) > 0.00001 {
			return false
		}
	}
	return true
}
