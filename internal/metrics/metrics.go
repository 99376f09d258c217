// Package metrics scores predicted label maps against ground truth.
//
// Scores are returned per frame and per object as [frame][object] grids in
// the order of the object ids passed in.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/mask"
)

// Metric names a score used to rank frames and summarise reports.
type Metric string

const (
	J       Metric = "J"
	F       Metric = "F"
	JAndF   Metric = "J_AND_F"
	boundTh        = 0.008
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case J, F, JAndF:
		return m, nil
	}
	return "", fault.Errorf(fault.ErrInvalidInput, "unknown metric %q", s)
}

// Jaccard returns intersection over union per frame and object. A pair with
// an empty union scores 1.
func Jaccard(gt, pred mask.Sequence, ids []int) ([][]float64, error) {
	if err := mask.SameShape(gt, pred); err != nil {
		return nil, err
	}
	out := make([][]float64, len(gt))
	for f := range gt {
		out[f] = make([]float64, len(ids))
		for o, id := range ids {
			out[f][o] = JaccardFrame(gt[f], pred[f], id)
		}
	}
	return out, nil
}

// JaccardFrame scores a single object on a single frame.
func JaccardFrame(gt, pred *mask.LabelMap, id int) float64 {
	var inter, union int
	for i := range gt.Pix {
		g, p := int(gt.Pix[i]) == id, int(pred.Pix[i]) == id
		if g && p {
			inter++
		}
		if g || p {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// FMeasure returns the boundary F-measure per frame and object.
func FMeasure(gt, pred mask.Sequence, ids []int) ([][]float64, error) {
	if err := mask.SameShape(gt, pred); err != nil {
		return nil, err
	}
	out := make([][]float64, len(gt))
	for f := range gt {
		out[f] = make([]float64, len(ids))
		for o, id := range ids {
			out[f][o] = FMeasureFrame(gt[f], pred[f], id)
		}
	}
	return out, nil
}

// FMeasureFrame compares the boundaries of one object on one frame. Boundary
// pixels match when they lie within ceil(0.008 × image diagonal) pixels of
// the other boundary.
func FMeasureFrame(gt, pred *mask.LabelMap, id int) float64 {
	bound := math.Ceil(boundTh * math.Hypot(float64(gt.Width), float64(gt.Height)))
	disk := mask.Disk(bound)

	fgB := boundary(pred.Object(id))
	gtB := boundary(gt.Object(id))
	fgDil := mask.Dilate(fgB, disk)
	gtDil := mask.Dilate(gtB, disk)

	var nFg, nGt, fgMatch, gtMatch int
	for i := range fgB.Pix {
		if fgB.Pix[i] {
			nFg++
			if gtDil.Pix[i] {
				fgMatch++
			}
		}
		if gtB.Pix[i] {
			nGt++
			if fgDil.Pix[i] {
				gtMatch++
			}
		}
	}

	var precision, recall float64
	switch {
	case nFg == 0 && nGt > 0:
		precision, recall = 1, 0
	case nFg > 0 && nGt == 0:
		precision, recall = 0, 1
	case nFg == 0 && nGt == 0:
		precision, recall = 1, 1
	default:
		precision = float64(fgMatch) / float64(nFg)
		recall = float64(gtMatch) / float64(nGt)
	}
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// boundary marks pixels that differ from their right, lower or lower-right
// neighbour. The last row only compares rightwards, the last column only
// downwards, and the bottom-right pixel is never a boundary.
func boundary(m *mask.Binary) *mask.Binary {
	w, h := m.Width, m.Height
	b := mask.NewBinary(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := m.Pix[y*w+x]
			e, s, se := m.At(x+1, y), m.At(x, y+1), m.At(x+1, y+1)
			switch {
			case x == w-1 && y == h-1:
				b.Pix[y*w+x] = false
			case y == h-1:
				b.Pix[y*w+x] = v != e
			case x == w-1:
				b.Pix[y*w+x] = v != s
			default:
				b.Pix[y*w+x] = v != e || v != s || v != se
			}
		}
	}
	return b
}

// Combine averages two equally shaped score grids.
func Combine(a, b [][]float64) [][]float64 {
	out := make([][]float64, len(a))
	for f := range a {
		out[f] = make([]float64, len(a[f]))
		floats.AddTo(out[f], a[f], b[f])
		floats.Scale(0.5, out[f])
	}
	return out
}

// FrameMeans averages each frame's scores across objects.
func FrameMeans(scores [][]float64) []float64 {
	out := make([]float64, len(scores))
	for f, s := range scores {
		out[f] = stat.Mean(s, nil)
	}
	return out
}

// Worst returns the first frame with the lowest mean score.
func Worst(scores [][]float64) int {
	if len(scores) == 0 {
		return -1
	}
	return floats.MinIdx(FrameMeans(scores))
}
