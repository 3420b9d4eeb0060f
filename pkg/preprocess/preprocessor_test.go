package preprocess_test

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
	"k8s.io/examples/AI/npubridge/pkg/preprocess"
	"k8s.io/examples/AI/npubridge/pkg/types"
	"k8s.io/klog/v2/ktesting"
)

type fakeEngine struct {
	calls int
	rect  types.Rect
	err   error
}

func (e *fakeEngine) Assign(inputs *engine.Tensors, data *preprocess.InputData, startIndex int) (types.Rect, error) {
	e.calls++
	return e.rect, e.err
}

func imageInputs(t *testing.T, dtype types.DataType, layout types.Layout, dims ...int32) *engine.Tensors {
	t.Helper()
	tensor, err := engine.NewTensor("image", dtype, layout, types.NewShape(dims...))
	require.NoError(t, err)
	return engine.NewTensors(tensor)
}

func writePNG(t *testing.T, width, height int, c color.Color) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), "input.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestAssignRejectsEmptyData(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	fake := &fakeEngine{}
	p := preprocess.NewWithEngine(fake)
	inputs := imageInputs(t, types.Uint8, types.LayoutNHWC, 1, 2, 2, 3)

	_, err := p.Assign(ctx, inputs, preprocess.NewEncodedInputData(nil), 0)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument), "got %v", err)

	_, err = p.Assign(ctx, inputs, nil, 0)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument), "got %v", err)
	assert.Equal(t, 0, fake.calls)
}

func TestAssignEngineFailure(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	p := preprocess.NewWithEngine(&fakeEngine{err: fmt.Errorf("no input at index 3")})
	inputs := imageInputs(t, types.Uint8, types.LayoutNHWC, 1, 2, 2, 3)

	_, err := p.Assign(ctx, inputs, preprocess.NewEncodedInputData([]byte{1}), 3)
	assert.True(t, errors.Is(err, errdefs.ErrRuntimeFailure), "got %v", err)
	assert.Contains(t, err.Error(), "no input at index 3")
}

func TestAssignReturnsEngineRect(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	want := types.Rect{Origin: types.Dim2d{X: 2, Y: 3}, Size: types.Dim2d{X: 4, Y: 5}}
	p := preprocess.NewWithEngine(&fakeEngine{rect: want})
	inputs := imageInputs(t, types.Uint8, types.LayoutNHWC, 1, 2, 2, 3)

	rect, err := p.Assign(ctx, inputs, preprocess.NewEncodedInputData([]byte{1}), 0)
	require.NoError(t, err)
	assert.Equal(t, want, rect)
}

func TestAssignFileMissing(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	p := preprocess.New()
	inputs := imageInputs(t, types.Uint8, types.LayoutNHWC, 1, 2, 2, 3)
	missing := filepath.Join(t.TempDir(), "missing.jpg")

	_, err := p.AssignFile(ctx, inputs, missing, 0)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument), "got %v", err)
	assert.Contains(t, err.Error(), "invalid input image: "+missing)
}

func TestAssignFileLetterbox(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	p := preprocess.New()
	inputs := imageInputs(t, types.Uint8, types.LayoutNHWC, 1, 4, 4, 3)
	path := writePNG(t, 8, 4, color.NRGBA{R: 255, A: 255})

	rect, err := p.AssignFile(ctx, inputs, path, 0)
	require.NoError(t, err)
	assert.Equal(t, types.Rect{Origin: types.Dim2d{X: 0, Y: -2}, Size: types.Dim2d{X: 8, Y: 8}}, rect)

	tensor, err := inputs.At(0)
	require.NoError(t, err)
	pixels, err := tensor.Bytes()
	require.NoError(t, err)
	require.Len(t, pixels, 4*4*3)

	pixel := func(x, y int) []byte {
		i := (y*4 + x) * 3
		return pixels[i : i+3]
	}
	assert.Equal(t, []byte{0, 0, 0}, pixel(0, 0), "border row")
	assert.Equal(t, []byte{0, 0, 0}, pixel(3, 3), "border row")
	assert.InDelta(t, 255, int(pixel(1, 1)[0]), 1)
	assert.InDelta(t, 0, int(pixel(1, 1)[1]), 1)
}

func TestAssignFileStretch(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	e := preprocess.NewImageEngine()
	e.KeepAspectRatio = false
	p := preprocess.NewWithEngine(e)
	inputs := imageInputs(t, types.Uint8, types.LayoutNHWC, 1, 4, 4, 3)
	path := writePNG(t, 8, 4, color.NRGBA{G: 255, A: 255})

	rect, err := p.AssignFile(ctx, inputs, path, 0)
	require.NoError(t, err)
	assert.Equal(t, types.Rect{Size: types.Dim2d{X: 8, Y: 4}}, rect)

	tensor, err := inputs.At(0)
	require.NoError(t, err)
	pixels, err := tensor.Bytes()
	require.NoError(t, err)
	for i := 0; i < len(pixels); i += 3 {
		assert.InDelta(t, 255, int(pixels[i+1]), 1, "pixel %d", i/3)
	}
}

func TestAssignRawToPlanarFloat(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	p := preprocess.New()
	inputs := imageInputs(t, types.Float32, types.LayoutNCHW, 1, 3, 2, 2)
	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	rect, err := p.AssignRaw(ctx, inputs, raw, types.NewShape(1, 2, 2, 3), types.LayoutNHWC, 0)
	require.NoError(t, err)
	assert.Equal(t, types.Rect{Size: types.Dim2d{X: 2, Y: 2}}, rect)

	tensor, err := inputs.At(0)
	require.NoError(t, err)
	values, err := tensor.AsFloat()
	require.NoError(t, err)
	want := []float32{1, 4, 7, 10, 2, 5, 8, 11, 3, 6, 9, 12}
	require.Len(t, values, len(want))
	for i := range want {
		assert.InDelta(t, want[i], values[i], 1, "element %d", i)
	}
}

func TestAssignRawErrors(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	p := preprocess.New()
	inputs := imageInputs(t, types.Uint8, types.LayoutNHWC, 1, 2, 2, 3)

	_, err := p.AssignRaw(ctx, inputs, []byte{1, 2, 3}, types.NewShape(1, 2, 2, 3), types.LayoutNHWC, 0)
	assert.True(t, errors.Is(err, errdefs.ErrRuntimeFailure), "short buffer: %v", err)

	_, err = p.AssignRaw(ctx, inputs, make([]byte, 12), types.NewShape(1, 2, 2, 3), types.LayoutNHWC, 1)
	assert.True(t, errors.Is(err, errdefs.ErrRuntimeFailure), "bad start index: %v", err)

	int16Inputs := imageInputs(t, types.Int16, types.LayoutNHWC, 1, 2, 2, 3)
	_, err = p.AssignRaw(ctx, int16Inputs, make([]byte, 12), types.NewShape(1, 2, 2, 3), types.LayoutNHWC, 0)
	assert.True(t, errors.Is(err, errdefs.ErrRuntimeFailure), "unsupported tensor type: %v", err)
}

func TestInputData(t *testing.T) {
	d := preprocess.NewRawInputData([]byte{1, 2, 3}, types.NewShape(1, 1, 3), types.LayoutNHWC)
	assert.False(t, d.Empty())
	assert.Equal(t, 3, d.Size())
	assert.Equal(t, preprocess.InputImage8Bits, d.Type())
	assert.Equal(t, "image_8bits", d.Type().String())
	assert.Equal(t, types.LayoutNHWC, d.Layout())
	assert.True(t, d.Shape().Equal(types.NewShape(1, 1, 3)))

	var empty *preprocess.InputData
	assert.True(t, empty.Empty())
}
