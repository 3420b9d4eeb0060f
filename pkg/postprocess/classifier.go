// Package postprocess turns network outputs into classification and
// detection results.
package postprocess

import (
	"cmp"
	"slices"

	"k8s.io/examples/AI/npubridge/pkg/engine"
)

type ClassifierItem struct {
	ClassIndex int
	Confidence float32
}

// ClassifierResult holds the best classes, by descending confidence.
type ClassifierResult struct {
	Success bool
	Items   []ClassifierItem
}

// Classifier reports the topCount most confident classes of the first output.
type Classifier struct {
	topCount int
}

// NewClassifier returns a classifier reporting up to topCount classes. A
// topCount below 1 is treated as 1.
func NewClassifier(topCount int) *Classifier {
	return &Classifier{topCount: max(1, topCount)}
}

func (c *Classifier) TopCount() int { return c.topCount }

// Process never fails; an unusable output yields a result with Success unset.
func (c *Classifier) Process(outputs *engine.Tensors) ClassifierResult {
	out, err := outputs.At(0)
	if err != nil {
		return ClassifierResult{}
	}
	scores, err := out.AsFloat()
	if err != nil || len(scores) == 0 {
		return ClassifierResult{}
	}

	items := make([]ClassifierItem, len(scores))
	for i, s := range scores {
		items[i] = ClassifierItem{ClassIndex: i, Confidence: s}
	}
	slices.SortStableFunc(items, func(a, b ClassifierItem) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	if len(items) > c.topCount {
		items = items[:c.topCount]
	}
	return ClassifierResult{Success: true, Items: items}
}
