package preprocess

import (
	"fmt"
	"os"

	"k8s.io/examples/AI/npubridge/pkg/types"
)

// InputType tells how the bytes of an InputData are to be interpreted.
type InputType int

const (
	// InputEncoded is an encoded image file (jpeg, png, ...).
	InputEncoded InputType = iota
	// InputImage8Bits is raw 8-bit pixel data described by a shape and a layout.
	InputImage8Bits
)

func (t InputType) String() string {
	switch t {
	case InputEncoded:
		return "encoded"
	case InputImage8Bits:
		return "image_8bits"
	default:
		return fmt.Sprintf("InputType(%d)", int(t))
	}
}

// InputData is the payload handed to a preprocessing engine.
type InputData struct {
	data      []byte
	inputType InputType
	shape     types.Shape
	layout    types.Layout
	source    string
}

// LoadInputData reads an encoded image from path.
func LoadInputData(path string) (*InputData, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input %q: %w", path, err)
	}
	return &InputData{data: b, inputType: InputEncoded, source: path}, nil
}

// NewEncodedInputData wraps an in-memory encoded image.
func NewEncodedInputData(data []byte) *InputData {
	return &InputData{data: data, inputType: InputEncoded}
}

// NewRawInputData wraps raw 8-bit pixels. The data is not copied.
func NewRawInputData(data []byte, shape types.Shape, layout types.Layout) *InputData {
	return &InputData{data: data, inputType: InputImage8Bits, shape: shape, layout: layout}
}

// Empty reports whether there is no data to assign. A nil InputData is empty.
func (d *InputData) Empty() bool { return d == nil || len(d.data) == 0 }

func (d *InputData) Data() []byte         { return d.data }
func (d *InputData) Size() int            { return len(d.data) }
func (d *InputData) Type() InputType      { return d.inputType }
func (d *InputData) Shape() types.Shape   { return d.shape }
func (d *InputData) Layout() types.Layout { return d.layout }

// Source is the file the data was loaded from, if any.
func (d *InputData) Source() string { return d.source }
