// Package types holds the value types shared by tensors, preprocessing and
// postprocessing: data types, layouts, shapes and 2D geometry.
package types

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/x448/float16"
	"k8s.io/examples/AI/npubridge/pkg/errdefs"
)

// DataType is the element type of a tensor.
type DataType int

const (
	Invalid DataType = iota
	Byte
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float16
	Float32
)

var dataTypeNames = [...]string{
	Invalid: "invalid",
	Byte:    "byte",
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Float16: "float16",
	Float32: "float32",
}

func (d DataType) String() string {
	if d < 0 || int(d) >= len(dataTypeNames) {
		return fmt.Sprintf("DataType(%d)", int(d))
	}
	return dataTypeNames[d]
}

// ElementSize returns the width of one element in bytes, or 0 for Invalid.
func (d DataType) ElementSize() int {
	switch d {
	case Byte, Int8, Uint8:
		return 1
	case Int16, Uint16, Float16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	}
	return 0
}

// HostType returns the Go element type holding values of d.
// Byte maps to uint8 and Float16 to float16.Float16.
func (d DataType) HostType() (reflect.Type, error) {
	switch d {
	case Byte, Uint8:
		return reflect.TypeFor[uint8](), nil
	case Int8:
		return reflect.TypeFor[int8](), nil
	case Int16:
		return reflect.TypeFor[int16](), nil
	case Uint16:
		return reflect.TypeFor[uint16](), nil
	case Int32:
		return reflect.TypeFor[int32](), nil
	case Uint32:
		return reflect.TypeFor[uint32](), nil
	case Float16:
		return reflect.TypeFor[float16.Float16](), nil
	case Float32:
		return reflect.TypeFor[float32](), nil
	}
	return nil, errdefs.New(errdefs.InvalidArgument, "invalid data type %s", d)
}

var dataTypeAliases = map[string]DataType{
	"byte":    Byte,
	"u8":      Uint8,
	"uint8":   Uint8,
	"quint8":  Uint8,
	"i8":      Int8,
	"int8":    Int8,
	"qint8":   Int8,
	"u16":     Uint16,
	"uint16":  Uint16,
	"quint16": Uint16,
	"i16":     Int16,
	"int16":   Int16,
	"qint16":  Int16,
	"u32":     Uint32,
	"uint32":  Uint32,
	"quint32": Uint32,
	"i32":     Int32,
	"int32":   Int32,
	"qint32":  Int32,
	"f16":     Float16,
	"fp16":    Float16,
	"float16": Float16,
	"f32":     Float32,
	"fp32":    Float32,
	"float32": Float32,
}

// ParseDataType parses the data type spellings used in model metadata.
func ParseDataType(s string) (DataType, error) {
	if d, ok := dataTypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return Invalid, errdefs.New(errdefs.InvalidArgument, "unknown data type %q", s)
}

// Layout is the axis ordering of a tensor.
type Layout int

const (
	LayoutNone Layout = iota
	LayoutNCHW
	LayoutNHWC
)

func (l Layout) String() string {
	switch l {
	case LayoutNone:
		return "none"
	case LayoutNCHW:
		return "nchw"
	case LayoutNHWC:
		return "nhwc"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// ParseLayout maps "nchw" and "nhwc" to their layouts; anything else is LayoutNone.
func ParseLayout(s string) Layout {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nchw":
		return LayoutNCHW
	case "nhwc":
		return LayoutNHWC
	}
	return LayoutNone
}
