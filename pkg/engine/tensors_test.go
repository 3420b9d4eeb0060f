package engine_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

func TestTensorsIndexing(t *testing.T) {
	a := mustTensor(t, types.Uint8, 1)
	b := mustTensor(t, types.Uint8, 2)
	ts := engine.NewTensors(a, b)
	require.Equal(t, 2, ts.Len())

	for i := 0; i < ts.Len(); i++ {
		_, err := ts.At(i)
		assert.NoError(t, err)
	}
	for _, i := range []int{2, 3, 100, -1} {
		_, err := ts.At(i)
		assert.True(t, errors.Is(err, errdefs.ErrIndexOutOfRange), "index %d", i)
	}

	var visited []*engine.Tensor
	for i, tensor := range ts.All() {
		assert.Equal(t, len(visited), i)
		visited = append(visited, tensor)
	}
	assert.Equal(t, []*engine.Tensor{a, b}, visited)
}

func TestTensorsAreLive(t *testing.T) {
	a := mustTensor(t, types.Uint8, 1, 2)
	ts := engine.NewTensors(a)

	require.NoError(t, a.AssignBytes([]byte{5, 6}))
	got, err := ts.At(0)
	require.NoError(t, err)
	raw, err := got.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6}, raw)

	ext := engine.NewBuffer(2)
	require.NoError(t, a.SetBuffer(ext))
	for _, tensor := range ts.All() {
		b, err := tensor.Buffer()
		require.NoError(t, err)
		assert.Same(t, ext, b)
	}
}

func TestTensorsFixedLength(t *testing.T) {
	items := []*engine.Tensor{mustTensor(t, types.Uint8, 1)}
	ts := engine.NewTensors(items...)
	items = append(items, mustTensor(t, types.Uint8, 1))
	items[0] = nil
	assert.Equal(t, 1, ts.Len())
	first, err := ts.At(0)
	require.NoError(t, err)
	assert.NotNil(t, first)

	var empty *engine.Tensors
	assert.Equal(t, 0, empty.Len())
}

func TestTensorsByName(t *testing.T) {
	a, err := engine.NewTensor("images", types.Uint8, types.LayoutNHWC, types.NewShape(1, 2, 2, 3))
	require.NoError(t, err)
	ts := engine.NewTensors(a)
	got, ok := ts.ByName("images")
	assert.True(t, ok)
	assert.Same(t, a, got)
	_, ok = ts.ByName("missing")
	assert.False(t, ok)
}
