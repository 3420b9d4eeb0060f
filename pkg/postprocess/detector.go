package postprocess

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"k8s.io/examples/AI/npubridge/pkg/engine"
	"k8s.io/examples/AI/npubridge/pkg/types"
)

type DetectorOptions struct {
	// ScoreThreshold drops detections with a lower confidence.
	ScoreThreshold float32
	// MaxResults caps the number of items, 0 means no limit.
	MaxResults int
	// SuppressOverlaps enables non-maximum suppression.
	SuppressOverlaps bool
	IoUThreshold     float32
	// IoUWithMin divides the intersection by the smaller area instead of the union.
	IoUWithMin bool
}

func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		ScoreThreshold:   0.5,
		MaxResults:       0,
		SuppressOverlaps: true,
		IoUThreshold:     0.5,
		IoUWithMin:       false,
	}
}

type DetectorItem struct {
	ClassIndex  int
	Confidence  float32
	BoundingBox types.Rect
	Landmarks   []types.Landmark
	Mask        types.Mask
}

type DetectorResult struct {
	Success bool
	Items   []DetectorItem
}

// Box is a rectangle in coordinates normalized to the network input: (0, 0)
// is the top-left corner of the input and (1, 1) the bottom-right one.
type Box struct {
	X, Y, Width, Height float32
}

func (b Box) area() float32 { return max(0, b.Width) * max(0, b.Height) }

func (b Box) intersection(o Box) float32 {
	w := min(b.X+b.Width, o.X+o.Width) - max(b.X, o.X)
	h := min(b.Y+b.Height, o.Y+o.Height) - max(b.Y, o.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Point is a landmark in normalized input coordinates.
type Point struct {
	X, Y, Z    float32
	Visibility float32
}

// Detection is a decoded candidate, before suppression and mapping back to
// the original data.
type Detection struct {
	ClassIndex int
	Confidence float32
	Box        Box
	Landmarks  []Point
	Mask       types.Mask
}

// Decoder extracts the candidate detections of a model family from its outputs.
type Decoder interface {
	Decode(outputs *engine.Tensors) ([]Detection, error)
}

type Detector struct {
	options DetectorOptions
	decoder Decoder
}

func NewDetector(decoder Decoder, options DetectorOptions) *Detector {
	return &Detector{options: options, decoder: decoder}
}

func (d *Detector) Options() DetectorOptions { return d.options }

// Process decodes outputs and maps the detections into the coordinates of
// assigned, the region of the original data the network input covers.
func (d *Detector) Process(outputs *engine.Tensors, assigned types.Rect) DetectorResult {
	if d.decoder == nil || assigned.Empty() {
		return DetectorResult{}
	}
	detections, err := d.decoder.Decode(outputs)
	if err != nil {
		return DetectorResult{}
	}

	var kept []Detection
	for _, det := range detections {
		if det.Confidence >= d.options.ScoreThreshold {
			kept = append(kept, det)
		}
	}
	slices.SortStableFunc(kept, func(a, b Detection) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	if d.options.SuppressOverlaps {
		kept = d.suppress(kept)
	}
	if d.options.MaxResults > 0 && len(kept) > d.options.MaxResults {
		kept = kept[:d.options.MaxResults]
	}

	items := make([]DetectorItem, 0, len(kept))
	for _, det := range kept {
		items = append(items, toItem(det, assigned))
	}
	return DetectorResult{Success: true, Items: items}
}

// suppress drops every detection overlapping a more confident one of the
// same class. dets must be sorted by descending confidence.
func (d *Detector) suppress(dets []Detection) []Detection {
	var kept []Detection
	for _, det := range dets {
		overlaps := false
		for _, k := range kept {
			if k.ClassIndex == det.ClassIndex && d.iou(k.Box, det.Box) > d.options.IoUThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, det)
		}
	}
	return kept
}

func (d *Detector) iou(a, b Box) float32 {
	inter := a.intersection(b)
	if inter == 0 {
		return 0
	}
	var denom float32
	if d.options.IoUWithMin {
		denom = min(a.area(), b.area())
	} else {
		denom = a.area() + b.area() - inter
	}
	if denom <= 0 {
		return 0
	}
	return inter / denom
}

func scaleX(v float32, r types.Rect) int32 {
	return r.Origin.X + int32(math.Round(float64(v*float32(r.Size.X))))
}

func scaleY(v float32, r types.Rect) int32 {
	return r.Origin.Y + int32(math.Round(float64(v*float32(r.Size.Y))))
}

func toItem(det Detection, r types.Rect) DetectorItem {
	x0, y0 := scaleX(det.Box.X, r), scaleY(det.Box.Y, r)
	x1, y1 := scaleX(det.Box.X+det.Box.Width, r), scaleY(det.Box.Y+det.Box.Height, r)
	item := DetectorItem{
		ClassIndex: det.ClassIndex,
		Confidence: det.Confidence,
		BoundingBox: types.Rect{
			Origin: types.Dim2d{X: x0, Y: y0},
			Size:   types.Dim2d{X: x1 - x0, Y: y1 - y0},
		},
		Mask: det.Mask,
	}
	for _, p := range det.Landmarks {
		lm := types.NewLandmark(scaleX(p.X, r), scaleY(p.Y, r), int32(math.Round(float64(p.Z))))
		lm.Visibility = p.Visibility
		item.Landmarks = append(item.Landmarks, lm)
	}
	return item
}

// YOLOv8Decoder decodes anchor-free outputs of shape [1, 4+classes, candidates]
// where each candidate holds its box center, its size and a score per class,
// in pixels of an input of size Input.
type YOLOv8Decoder struct {
	Input types.Dim2d
}

var _ Decoder = (*YOLOv8Decoder)(nil)

func (y *YOLOv8Decoder) Decode(outputs *engine.Tensors) ([]Detection, error) {
	out, err := outputs.At(0)
	if err != nil {
		return nil, err
	}
	shape := out.Shape()
	if shape.Rank() != 3 {
		return nil, fmt.Errorf("output %q: expected 3 dimensions, got %s", out.Name(), shape)
	}
	dims := shape.Dims()
	rows, candidates := int(dims[1]), int(dims[2])
	if dims[0] != 1 || rows < 5 {
		return nil, fmt.Errorf("output %q: unsupported shape %s", out.Name(), shape)
	}
	if y.Input.X <= 0 || y.Input.Y <= 0 {
		return nil, fmt.Errorf("invalid input size %s", y.Input)
	}
	values, err := out.AsFloat()
	if err != nil {
		return nil, err
	}

	at := func(row, i int) float32 { return values[row*candidates+i] }
	w, h := float32(y.Input.X), float32(y.Input.Y)
	var dets []Detection
	for i := 0; i < candidates; i++ {
		best, bestScore := 0, at(4, i)
		for c := 1; c < rows-4; c++ {
			if s := at(4+c, i); s > bestScore {
				best, bestScore = c, s
			}
		}
		cx, cy, bw, bh := at(0, i)/w, at(1, i)/h, at(2, i)/w, at(3, i)/h
		dets = append(dets, Detection{
			ClassIndex: best,
			Confidence: bestScore,
			Box:        Box{X: cx - bw/2, Y: cy - bh/2, Width: bw, Height: bh},
		})
	}
	return dets, nil
}
