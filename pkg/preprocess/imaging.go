package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

// ImageEngine decodes images, scales them to the spatial size of the target
// tensor and writes the pixels in the tensor layout.
type ImageEngine struct {
	// KeepAspectRatio letterboxes the image instead of stretching it.
	KeepAspectRatio bool

	// Fill is the color of the letterbox borders.
	Fill color.Color
}

var _ Engine = (*ImageEngine)(nil)

func NewImageEngine() *ImageEngine {
	return &ImageEngine{
		KeepAspectRatio: true,
		Fill:            color.NRGBA{A: 255},
	}
}

// geometry is the spatial layout of a 4-D image tensor.
type geometry struct {
	layout                  types.Layout
	height, width, channels int
}

func tensorGeometry(t *engine.Tensor) (geometry, error) {
	shape := t.Shape()
	if shape.Rank() != 4 {
		return geometry{}, fmt.Errorf("tensor %q: expected 4 dimensions, got %s", t.Name(), shape)
	}
	return imageGeometry(shape.Dims()[1:], t.Layout())
}

// imageGeometry interprets the 3 non-batch dimensions of an image.
func imageGeometry(dims []int32, layout types.Layout) (geometry, error) {
	if len(dims) != 3 {
		return geometry{}, fmt.Errorf("expected 3 image dimensions, got %d", len(dims))
	}
	g := geometry{layout: layout}
	if layout == types.LayoutNCHW {
		g.channels, g.height, g.width = int(dims[0]), int(dims[1]), int(dims[2])
	} else {
		g.height, g.width, g.channels = int(dims[0]), int(dims[1]), int(dims[2])
	}
	switch g.channels {
	case 1, 3, 4:
	default:
		return geometry{}, fmt.Errorf("unsupported number of channels %d", g.channels)
	}
	return g, nil
}

// offset is the index of channel c of pixel (x, y).
func (g geometry) offset(x, y, c int) int {
	if g.layout == types.LayoutNCHW {
		return (c*g.height+y)*g.width + x
	}
	return (y*g.width+x)*g.channels + c
}

func (e *ImageEngine) Assign(inputs *engine.Tensors, data *InputData, startIndex int) (types.Rect, error) {
	t, err := inputs.At(startIndex)
	if err != nil {
		return types.Rect{}, err
	}
	dst, err := tensorGeometry(t)
	if err != nil {
		return types.Rect{}, err
	}

	src, err := decode(data)
	if err != nil {
		return types.Rect{}, err
	}
	size := src.Bounds().Size()
	if size.X == 0 || size.Y == 0 {
		return types.Rect{}, fmt.Errorf("empty image")
	}

	img, rect := e.fit(src, dst.width, dst.height)

	pixels := channelsOf(img, dst)
	dims := make([]int, 0, 4)
	for _, d := range t.Shape().All() {
		dims = append(dims, int(d))
	}

	var a *engine.Array
	switch t.DataType() {
	case types.Uint8, types.Byte:
		a, err = engine.NewArray(pixels, dims...)
	case types.Float32:
		values := make([]float32, len(pixels))
		for i, p := range pixels {
			values[i] = float32(p)
		}
		a, err = engine.NewArray(values, dims...)
	default:
		return types.Rect{}, fmt.Errorf("tensor %q: unsupported data type %s for image input", t.Name(), t.DataType())
	}
	if err != nil {
		return types.Rect{}, err
	}
	if err := t.AssignArray(a); err != nil {
		return types.Rect{}, err
	}
	return rect, nil
}

// fit scales img to width x height and returns the region of img, in img
// coordinates, that the result covers.
func (e *ImageEngine) fit(img image.Image, width, height int) (*image.NRGBA, types.Rect) {
	size := img.Bounds().Size()
	if !e.KeepAspectRatio {
		full := types.Rect{Size: types.Dim2d{X: int32(size.X), Y: int32(size.Y)}}
		return imaging.Resize(img, width, height, imaging.Linear), full
	}

	scale := math.Min(float64(width)/float64(size.X), float64(height)/float64(size.Y))
	scaledWidth := max(1, int(math.Round(float64(size.X)*scale)))
	scaledHeight := max(1, int(math.Round(float64(size.Y)*scale)))
	scaled := imaging.Resize(img, scaledWidth, scaledHeight, imaging.Linear)

	fill := e.Fill
	if fill == nil {
		fill = color.NRGBA{A: 255}
	}
	out := imaging.PasteCenter(imaging.New(width, height, fill), scaled)

	coveredWidth := int32(math.Round(float64(width) / scale))
	coveredHeight := int32(math.Round(float64(height) / scale))
	rect := types.Rect{
		Origin: types.Dim2d{X: (int32(size.X) - coveredWidth) / 2, Y: (int32(size.Y) - coveredHeight) / 2},
		Size:   types.Dim2d{X: coveredWidth, Y: coveredHeight},
	}
	return out, rect
}

func decode(data *InputData) (image.Image, error) {
	switch data.Type() {
	case InputEncoded:
		img, err := imaging.Decode(bytes.NewReader(data.Data()))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
		return img, nil
	case InputImage8Bits:
		return rawImage(data)
	default:
		return nil, fmt.Errorf("unsupported input type %s", data.Type())
	}
}

// rawImage converts 8-bit pixels of shape [1,]H,W,C (or [1,]C,H,W) to an image.
func rawImage(data *InputData) (image.Image, error) {
	dims := data.Shape().Dims()
	if len(dims) == 4 {
		if dims[0] != 1 {
			return nil, fmt.Errorf("raw image with batch size %d is not supported", dims[0])
		}
		dims = dims[1:]
	}
	g, err := imageGeometry(dims, data.Layout())
	if err != nil {
		return nil, err
	}
	if want := g.width * g.height * g.channels; want != data.Size() {
		return nil, fmt.Errorf("raw image %s needs %d bytes, got %d", data.Shape(), want, data.Size())
	}

	pix := data.Data()
	img := image.NewNRGBA(image.Rect(0, 0, g.width, g.height))
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			c := color.NRGBA{A: 255}
			switch g.channels {
			case 1:
				v := pix[g.offset(x, y, 0)]
				c.R, c.G, c.B = v, v, v
			case 3, 4:
				c.R, c.G, c.B = pix[g.offset(x, y, 0)], pix[g.offset(x, y, 1)], pix[g.offset(x, y, 2)]
				if g.channels == 4 {
					c.A = pix[g.offset(x, y, 3)]
				}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img, nil
}

// channelsOf lays out the pixels of img as described by g.
func channelsOf(img *image.NRGBA, g geometry) []uint8 {
	out := make([]uint8, g.width*g.height*g.channels)
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			c := img.NRGBAAt(x, y)
			switch g.channels {
			case 1:
				out[g.offset(x, y, 0)] = uint8((299*int(c.R) + 587*int(c.G) + 114*int(c.B) + 500) / 1000)
			case 3, 4:
				out[g.offset(x, y, 0)] = c.R
				out[g.offset(x, y, 1)] = c.G
				out[g.offset(x, y, 2)] = c.B
				if g.channels == 4 {
					out[g.offset(x, y, 3)] = c.A
				}
			}
		}
	}
	return out
}
