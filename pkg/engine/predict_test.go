package engine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/engine/fallback"
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
	"k8s.io/klog/v2/ktesting"
)

func twoInputModel(t *testing.T) []byte {
	t.Helper()
	model, err := fallback.EncodeModel(&fallback.Metadata{
		Inputs: map[string]fallback.TensorInfo{
			"0": {Name: "image", DType: "float32", Format: "nchw", Shape: []int32{1, 3, 2, 2}},
			"1": {Name: "scale", DType: "uint8", Format: "none", Shape: []int32{1, 2}},
		},
		Outputs: map[string]fallback.TensorInfo{
			"0": {Name: "out", DType: "float32", Format: "nchw", Shape: []int32{1, 3, 2, 2}},
		},
	})
	require.NoError(t, err)
	return model
}

func loadedNetwork(t *testing.T, opts ...fallback.Option) (context.Context, *fallback.Network) {
	t.Helper()
	_, ctx := ktesting.NewTestContext(t)
	net := fallback.NewNetwork(opts...)
	require.NoError(t, engine.LoadModelData(ctx, net, twoInputModel(t), ""))
	t.Cleanup(func() { net.Close() })
	return ctx, net
}

func TestPredictWith(t *testing.T) {
	ctx, net := loadedNetwork(t)

	image := make([]float32, 12)
	for i := range image {
		image[i] = float32(i)
	}
	outputs, err := engine.PredictWith(ctx, net,
		mustArray(t, image, 3, 2, 2),
		mustArray(t, []uint8{1, 2}, 2),
	)
	require.NoError(t, err)
	require.Equal(t, 1, outputs.Len())

	out, err := outputs.At(0)
	require.NoError(t, err)
	view, err := out.Export()
	require.NoError(t, err)
	data, err := view.Data()
	require.NoError(t, err)
	assert.Equal(t, image, data)
}

func TestPredictWithInputCountMismatch(t *testing.T) {
	ctx, net := loadedNetwork(t)
	in0, err := net.Inputs().At(0)
	require.NoError(t, err)
	gen := in0.Generation()

	_, err = engine.PredictWith(ctx, net,
		mustArray(t, make([]float32, 12), 3, 2, 2),
		mustArray(t, []uint8{1, 2}, 2),
		mustArray(t, []uint8{1, 2}, 2),
	)
	assert.True(t, errors.Is(err, errdefs.ErrInputCountMismatch))
	assert.Equal(t, "invalid number of inputs: expected 2 inputs, got 3 inputs", err.Error())
	assert.Equal(t, gen, in0.Generation(), "no input is touched")
}

func TestPredictWithTypeMismatch(t *testing.T) {
	ctx, net := loadedNetwork(t)
	_, err := engine.PredictWith(ctx, net, mustArray(t, make([]float32, 12), 3, 2, 2), []uint8{1, 2})
	assert.True(t, errors.Is(err, errdefs.ErrTypeMismatch))
}

func TestPredictWithIsAtomic(t *testing.T) {
	ctx, net := loadedNetwork(t)
	in0, err := net.Inputs().At(0)
	require.NoError(t, err)
	gen := in0.Generation()

	_, err = engine.PredictWith(ctx, net,
		mustArray(t, make([]float32, 12), 3, 2, 2),
		mustArray(t, []uint8{1, 2, 3}, 3),
	)
	assert.True(t, errors.Is(err, errdefs.ErrShapeMismatch))
	assert.Equal(t, gen, in0.Generation(), "first input must not be written when the second is rejected")

	// A buffer the CPU can't touch is rejected before anything is written too.
	in1, err := net.Inputs().At(1)
	require.NoError(t, err)
	b, err := in1.Buffer()
	require.NoError(t, err)
	b.AllowCPUAccess(false)
	_, err = engine.PredictWith(ctx, net,
		mustArray(t, make([]float32, 12), 3, 2, 2),
		mustArray(t, []uint8{1, 2}, 2),
	)
	assert.True(t, errors.Is(err, errdefs.ErrRuntimeFailure))
	assert.Equal(t, gen, in0.Generation())
}

func TestPredictFailure(t *testing.T) {
	ctx, net := loadedNetwork(t, fallback.WithKernel(func(inputs, outputs *engine.Tensors) error {
		return fmt.Errorf("device lost")
	}))
	_, err := engine.PredictWith(ctx, net,
		mustArray(t, make([]float32, 12), 3, 2, 2),
		mustArray(t, []uint8{1, 2}, 2),
	)
	assert.True(t, errors.Is(err, errdefs.ErrPredictionFailure))
	assert.Equal(t, "failed to predict: device lost", err.Error())
}

func TestPredictRequiresAssignedInputs(t *testing.T) {
	ctx, net := loadedNetwork(t)
	_, err := engine.Predict(ctx, net)
	assert.True(t, errors.Is(err, errdefs.ErrPredictionFailure))

	for _, in := range net.Inputs().All() {
		require.NoError(t, in.AssignBytes(make([]byte, in.Size())))
	}
	outputs, err := engine.Predict(ctx, net)
	require.NoError(t, err)
	assert.Same(t, net.Outputs(), outputs)
}

func TestPredictInvalidatesOutputViews(t *testing.T) {
	ctx, net := loadedNetwork(t)
	inputs := []any{mustArray(t, make([]float32, 12), 3, 2, 2), mustArray(t, []uint8{1, 2}, 2)}
	outputs, err := engine.PredictWith(ctx, net, inputs...)
	require.NoError(t, err)
	out, err := outputs.At(0)
	require.NoError(t, err)
	view, err := out.Export()
	require.NoError(t, err)

	_, err = engine.PredictWith(ctx, net, inputs...)
	require.NoError(t, err)
	_, err = view.Data()
	assert.True(t, errors.Is(err, errdefs.ErrInvalidState))
}

func TestLoadModelErrors(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	net := fallback.NewNetwork()
	assert.Equal(t, 0, net.Inputs().Len())
	assert.Equal(t, 0, net.Outputs().Len())

	err := engine.LoadModelData(ctx, net, nil, "")
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))

	err = engine.LoadModelData(ctx, net, []byte("Invalid model data"), "")
	assert.True(t, errors.Is(err, errdefs.ErrModelLoadFailure))

	err = engine.LoadModelFile(ctx, net, "non_existent_model.synap", "")
	assert.True(t, errors.Is(err, errdefs.ErrModelLoadFailure))
}
