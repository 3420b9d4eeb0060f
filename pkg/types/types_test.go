package types

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
)

func TestDataTypeNames(t *testing.T) {
	want := map[DataType]string{
		Invalid: "invalid", Byte: "byte", Int8: "int8", Uint8: "uint8", Int16: "int16",
		Uint16: "uint16", Int32: "int32", Uint32: "uint32", Float16: "float16", Float32: "float32",
	}
	for d, name := range want {
		assert.Equal(t, name, d.String())
	}
}

func TestDataTypeHostType(t *testing.T) {
	for _, tc := range []struct {
		dtype DataType
		want  reflect.Type
		size  int
	}{
		{Byte, reflect.TypeFor[uint8](), 1},
		{Int8, reflect.TypeFor[int8](), 1},
		{Uint8, reflect.TypeFor[uint8](), 1},
		{Int16, reflect.TypeFor[int16](), 2},
		{Uint16, reflect.TypeFor[uint16](), 2},
		{Int32, reflect.TypeFor[int32](), 4},
		{Uint32, reflect.TypeFor[uint32](), 4},
		{Float16, reflect.TypeFor[float16.Float16](), 2},
		{Float32, reflect.TypeFor[float32](), 4},
	} {
		got, err := tc.dtype.HostType()
		require.NoError(t, err, tc.dtype)
		assert.Equal(t, tc.want, got, tc.dtype)
		assert.Equal(t, tc.size, tc.dtype.ElementSize(), tc.dtype)
		assert.Equal(t, int(got.Size()), tc.dtype.ElementSize(), tc.dtype)
	}

	_, err := Invalid.HostType()
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))
	assert.Equal(t, 0, Invalid.ElementSize())
}

func TestParseDataType(t *testing.T) {
	for s, want := range map[string]DataType{
		"u8": Uint8, "quint8": Uint8, "qint8": Int8, "i16": Int16, "fp16": Float16, "F32": Float32, "qint32": Int32,
	} {
		got, err := ParseDataType(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
	_, err := ParseDataType("complex64")
	assert.Equal(t, errdefs.InvalidArgument, errdefs.KindOf(err))
}

func TestLayout(t *testing.T) {
	assert.Equal(t, 0, int(LayoutNone))
	assert.Equal(t, 1, int(LayoutNCHW))
	assert.Equal(t, 2, int(LayoutNHWC))
	assert.Equal(t, "none", LayoutNone.String())
	assert.Equal(t, LayoutNHWC, ParseLayout("nhwc"))
	assert.Equal(t, LayoutNCHW, ParseLayout("NCHW"))
	assert.Equal(t, LayoutNone, ParseLayout("hwc"))
}

func TestShape(t *testing.T) {
	s := NewShape(1, 3, 224, 224)
	d, err := s.At(0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), d)
	d, err = s.At(3)
	require.NoError(t, err)
	assert.Equal(t, int32(224), d)

	_, err = s.At(4)
	assert.True(t, errors.Is(err, errdefs.ErrIndexOutOfRange))
	_, err = s.At(-1)
	assert.True(t, errors.Is(err, errdefs.ErrIndexOutOfRange))

	var dims []int32
	for _, d := range s.All() {
		dims = append(dims, d)
	}
	assert.Equal(t, []int32{1, 3, 224, 224}, dims)

	assert.Equal(t, 3*224*224, s.ItemCount())
	assert.True(t, s.Valid())
	assert.True(t, s.Equal(NewShape(1, 3, 224, 224)))
	assert.False(t, s.Equal(NewShape(1, 3, 224)))
	assert.Equal(t, "Shape(1, 3, 224, 224)", s.String())

	assert.False(t, NewShape(1, 0, 3).Valid())
	assert.False(t, NewShape(1, -1).Valid())
	assert.Equal(t, 0, NewShape().ItemCount())
}

func TestShapeIsImmutable(t *testing.T) {
	dims := []int32{1, 2, 3}
	s := NewShape(dims...)
	dims[0] = 9
	s.Dims()[1] = 9
	assert.Equal(t, []int32{1, 2, 3}, s.Dims())
}

func TestDim2d(t *testing.T) {
	var zero Dim2d
	assert.Equal(t, Dim2d{}, zero)

	d := Dim2d{X: 5, Y: 10}
	assert.Equal(t, Dim2d{X: 6, Y: 12}, d.Add(Dim2d{X: 1, Y: 2}))
	d.AddInPlace(Dim2d{X: 10, Y: 1})
	assert.Equal(t, Dim2d{X: 15, Y: 11}, d)
	assert.NotEqual(t, Dim2d{X: 1, Y: 2}, Dim2d{X: 2, Y: 2})
	assert.Equal(t, "Dim2d(x=3, y=4)", Dim2d{X: 3, Y: 4}.String())
}

func TestRect(t *testing.T) {
	var r Rect
	assert.True(t, r.Empty())

	r2 := Rect{Origin: Dim2d{2, 3}, Size: Dim2d{4, 5}}
	assert.False(t, r2.Empty())
	assert.NotEqual(t, r, r2)
	assert.True(t, Rect{Size: Dim2d{4, 0}}.Empty())
	assert.Equal(t, "Rect(origin=(2, 3), size=(4, 5))", r2.String())
}

func TestLandmark(t *testing.T) {
	lm := NewLandmark(0, 0, 0)
	assert.Equal(t, float32(-1), lm.Visibility)

	lm2 := Landmark{X: 10, Y: 20, Z: 30, Visibility: 0.5}
	assert.False(t, lm.Equal(lm2))
	assert.True(t, lm2.Equal(Landmark{X: 10, Y: 20, Z: 30, Visibility: 1}))
	assert.Equal(t, "Landmark(x=10, y=20, z=30, visibility=0.5)", lm2.String())
}

func TestMask(t *testing.T) {
	m := NewMask(5, 3)
	assert.Equal(t, uint32(5), m.Width())
	assert.Equal(t, uint32(3), m.Height())

	require.NoError(t, m.SetValue(0, 0, 1.0))
	require.NoError(t, m.SetValue(1, 2, 9.5))
	buf := m.Buffer()
	assert.Len(t, buf, 15)
	assert.InDelta(t, 1.0, buf[0], 1e-6)
	assert.InDelta(t, 9.5, buf[7], 1e-6)

	v, err := m.Value(1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 9.5, v, 1e-6)

	assert.True(t, m.NonEmpty())
	assert.False(t, NewMask(0, 0).NonEmpty())
	assert.Equal(t, "Mask(width=5, height=3)", m.String())
}

func TestMaskOutOfRange(t *testing.T) {
	m := NewMask(3, 3)
	err := m.SetValue(10, 0, 1.0)
	assert.True(t, errors.Is(err, errdefs.ErrIndexOutOfRange))
	_, err = m.Value(0, 3)
	assert.True(t, errors.Is(err, errdefs.ErrIndexOutOfRange))
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "3.2.0", Version{Major: 3, Minor: 2}.String())
}
