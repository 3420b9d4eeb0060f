package types

import (
	"fmt"

	"k8s.io/examples/AI/npubridge/pkg/errdefs"
)

// Mask is an instance segmentation: a dense grid of confidence values
// stored row-major.
type Mask struct {
	width  uint32
	height uint32
	values []float32
}

func NewMask(width, height uint32) Mask {
	return Mask{
		width:  width,
		height: height,
		values: make([]float32, int(width)*int(height)),
	}
}

func (m Mask) Width() uint32  { return m.width }
func (m Mask) Height() uint32 { return m.height }

// NonEmpty reports whether the mask has a non-zero extent.
func (m Mask) NonEmpty() bool { return m.width > 0 && m.height > 0 }

func (m *Mask) SetValue(row, col uint32, val float32) error {
	if row >= m.height || col >= m.width {
		return errdefs.New(errdefs.IndexOutOfRange, "mask index (%d, %d) out of range for %dx%d mask", row, col, m.width, m.height)
	}
	m.values[int(row)*int(m.width)+int(col)] = val
	return nil
}

func (m Mask) Value(row, col uint32) (float32, error) {
	if row >= m.height || col >= m.width {
		return 0, errdefs.New(errdefs.IndexOutOfRange, "mask index (%d, %d) out of range for %dx%d mask", row, col, m.width, m.height)
	}
	return m.values[int(row)*int(m.width)+int(col)], nil
}

// Buffer returns the mask values. The slice is shared with the mask.
func (m Mask) Buffer() []float32 { return m.values }

func (m Mask) String() string {
	return fmt.Sprintf("Mask(width=%d, height=%d)", m.width, m.height)
}
