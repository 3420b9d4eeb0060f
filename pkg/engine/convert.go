package engine

import (
	"math"
	"unsafe"

	"github.com/x448/float16"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

// asSlice reinterprets b as a slice of T in host byte order.
func asSlice[T any](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

// asBytes reinterprets s as its underlying bytes.
func asBytes[T any](s []T) []byte {
	var zero T
	if len(s) == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

func clamp(v, lo, hi int64) int64 {
	return max(lo, min(v, hi))
}

func roundClamp(v float32, lo, hi int64) int64 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	f := math.Round(float64(v))
	if f < float64(lo) {
		return lo
	}
	if f > float64(hi) {
		return hi
	}
	return int64(f)
}

// convertInto writes the elements of a into dst, converting them to dtype.
// a has already been validated, so dst and a hold the same number of bytes.
func convertInto(dst []byte, dtype types.DataType, a *Array) {
	switch a.dtype {
	case types.Uint8:
		copyUint8(dst, dtype, a.data)
	case types.Int16:
		copyInt16(dst, dtype, asSlice[int16](a.data))
	case types.Float32:
		copyFloat32(dst, dtype, asSlice[float32](a.data))
	}
}

func copyUint8(dst []byte, dtype types.DataType, src []uint8) {
	switch dtype {
	case types.Int8:
		out := asSlice[int8](dst)
		for i, v := range src {
			out[i] = int8(min(v, 127))
		}
	default:
		copy(dst, src)
	}
}

func copyInt16(dst []byte, dtype types.DataType, src []int16) {
	switch dtype {
	case types.Uint16:
		out := asSlice[uint16](dst)
		for i, v := range src {
			out[i] = uint16(max(v, 0))
		}
	case types.Float16:
		out := asSlice[float16.Float16](dst)
		for i, v := range src {
			out[i] = float16.Fromfloat32(float32(v))
		}
	default:
		copy(dst, asBytes(src))
	}
}

func copyFloat32(dst []byte, dtype types.DataType, src []float32) {
	switch dtype {
	case types.Int32:
		out := asSlice[int32](dst)
		for i, v := range src {
			out[i] = int32(roundClamp(v, math.MinInt32, math.MaxInt32))
		}
	case types.Uint32:
		out := asSlice[uint32](dst)
		for i, v := range src {
			out[i] = uint32(roundClamp(v, 0, math.MaxUint32))
		}
	default:
		copy(dst, asBytes(src))
	}
}

// toFloat converts raw tensor data to float32, reusing buf when it is large enough.
func toFloat(buf []float32, src []byte, dtype types.DataType, q *Quantization) []float32 {
	n := len(src) / dtype.ElementSize()
	if cap(buf) < n {
		buf = make([]float32, n)
	}
	buf = buf[:n]

	switch dtype {
	case types.Byte, types.Uint8:
		for i, v := range src {
			buf[i] = float32(v)
		}
	case types.Int8:
		for i, v := range asSlice[int8](src) {
			buf[i] = float32(v)
		}
	case types.Int16:
		for i, v := range asSlice[int16](src) {
			buf[i] = float32(v)
		}
	case types.Uint16:
		for i, v := range asSlice[uint16](src) {
			buf[i] = float32(v)
		}
	case types.Int32:
		for i, v := range asSlice[int32](src) {
			buf[i] = float32(v)
		}
	case types.Uint32:
		for i, v := range asSlice[uint32](src) {
			buf[i] = float32(v)
		}
	case types.Float16:
		for i, v := range asSlice[float16.Float16](src) {
			buf[i] = v.Float32()
		}
		return buf
	case types.Float32:
		// Unaligned float32 data can't be aliased.
		for i := range buf {
			buf[i] = math.Float32frombits(hostUint32(src[4*i:]))
		}
		return buf
	}

	if q != nil {
		zp, scale := float32(q.ZeroPoint), q.Scale
		for i := range buf {
			buf[i] = (buf[i] - zp) * scale
		}
	}
	return buf
}

func hostUint32(b []byte) uint32 {
	var v uint32
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), 4), b[:4])
	return v
}
