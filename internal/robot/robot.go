// Package robot simulates an annotator correcting a segmentation.
//
// Given ground truth and a prediction, the robot picks the frame to correct,
// finds where each object was missed, and draws one smooth stroke through
// every sizeable missed region.
package robot

import (
	"fmt"

	"github.com/banshee-data/interactive.eval/internal/curve"
	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/mask"
	"github.com/banshee-data/interactive.eval/internal/metrics"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
	"github.com/banshee-data/interactive.eval/internal/scribble"
	"github.com/banshee-data/interactive.eval/internal/skeleton"
	"github.com/banshee-data/interactive.eval/internal/strokegraph"
	"github.com/banshee-data/interactive.eval/internal/timeutil"
)

// Params tunes stroke synthesis.
type Params struct {
	// KernelSize is the opening disk diameter as a fraction of the square
	// root of the error area. Must be in [0, 1).
	KernelSize float64
	// MaxKernelRadius caps the opening disk radius in pixels.
	MaxKernelRadius float64
	// MinNbNodes drops strokes whose skeleton tree is smaller.
	MinNbNodes int
	// NbPoints is the number of samples along each smoothed stroke.
	NbPoints int
	// IgnoreLabel is excluded when inferring object ids.
	IgnoreLabel uint8
}

// DefaultParams returns the stock robot settings.
func DefaultParams() Params {
	return Params{
		KernelSize:      0.15,
		MaxKernelRadius: 16,
		MinNbNodes:      4,
		NbPoints:        1000,
		IgnoreLabel:     mask.IgnoreLabel,
	}
}

// Validate reports the first invalid parameter.
func (p Params) Validate() error {
	switch {
	case p.KernelSize < 0 || p.KernelSize >= 1:
		return fault.Errorf(fault.ErrInvalidInput, "kernel size %v not in [0,1)", p.KernelSize)
	case p.MaxKernelRadius <= 0:
		return fault.Errorf(fault.ErrInvalidInput, "max kernel radius %v", p.MaxKernelRadius)
	case p.MinNbNodes < 1:
		return fault.Errorf(fault.ErrInvalidInput, "min nb nodes %d", p.MinNbNodes)
	case p.NbPoints < 2:
		return fault.Errorf(fault.ErrInvalidInput, "nb points %d", p.NbPoints)
	}
	return nil
}

// Robot draws corrective scribbles.
type Robot struct {
	params Params
	clock  timeutil.Clock
}

// Option configures a Robot.
type Option func(*Robot)

// WithClock sets the clock used to timestamp strokes.
func WithClock(c timeutil.Clock) Option {
	return func(r *Robot) { r.clock = c }
}

// New returns a Robot with validated params.
func New(p Params, opts ...Option) (*Robot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r := &Robot{params: p, clock: timeutil.RealClock{}}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Params returns the robot's settings.
func (r *Robot) Params() Params { return r.params }

type interactOptions struct {
	objects int
	frame   *int
}

// InteractOption narrows a single Interact call.
type InteractOption func(*interactOptions)

// WithObjectCount fixes the object ids to 1..n instead of inferring them.
func WithObjectCount(n int) InteractOption {
	return func(o *interactOptions) { o.objects = n }
}

// WithFrame corrects frame f instead of the worst scoring one.
func WithFrame(f int) InteractOption {
	return func(o *interactOptions) { o.frame = &f }
}

// Interact returns a scribble with strokes on a single frame covering the
// regions where pred misses gt. The result is empty when nothing is missed.
func (r *Robot) Interact(sequence string, pred, gt mask.Sequence, opts ...InteractOption) (*scribble.Scribble, error) {
	var o interactOptions
	for _, fn := range opts {
		fn(&o)
	}
	if err := mask.SameShape(gt, pred); err != nil {
		return nil, err
	}
	frames, height, width, _ := gt.Shape()

	ids := mask.ObjectIDs(gt, o.objects, r.params.IgnoreLabel)
	if len(ids) == 0 {
		return nil, fault.Errorf(fault.ErrInvalidInput, "no foreground objects to correct in %s", sequence)
	}

	frame, err := r.targetFrame(gt, pred, ids, o.frame)
	if err != nil {
		return nil, err
	}

	out := scribble.New(sequence, frames)
	for _, id := range ids {
		lines, err := r.objectLines(gt[frame], pred[frame], id, width, height)
		if err != nil {
			return nil, fmt.Errorf("%s frame %d object %d: %w", sequence, frame, id, err)
		}
		out.Scribbles[frame] = append(out.Scribbles[frame], lines...)
	}
	monitoring.Diagf("robot %s: frame %d, %d strokes over %d objects",
		sequence, frame, len(out.Scribbles[frame]), len(ids))
	return out, nil
}

func (r *Robot) targetFrame(gt, pred mask.Sequence, ids []int, frame *int) (int, error) {
	if frame != nil {
		if *frame < 0 || *frame >= len(gt) {
			return 0, fault.Errorf(fault.ErrInvalidInput, "frame %d outside [0,%d)", *frame, len(gt))
		}
		return *frame, nil
	}
	scores, err := metrics.Jaccard(gt, pred, ids)
	if err != nil {
		return 0, err
	}
	return metrics.Worst(scores), nil
}

// objectLines draws the strokes for one object on one frame.
func (r *Robot) objectLines(gt, pred *mask.LabelMap, id, width, height int) ([]scribble.Line, error) {
	errMask := mask.ErrorMask(gt, pred, id)
	if errMask.Empty() {
		monitoring.Tracef("object %d: no error", id)
		return nil, nil
	}
	start := r.clock.Now()
	skel, err := skeleton.Skeletonize(errMask, r.params.KernelSize, r.params.MaxKernelRadius)
	if err != nil {
		return nil, err
	}
	g, ok := strokegraph.Build(skel)
	if !ok {
		monitoring.Tracef("object %d: skeleton vanished under smoothing (%d error px)", id, errMask.Count())
		return nil, nil
	}
	trees, err := strokegraph.Decompose(g, r.params.MinNbNodes)
	if err != nil {
		return nil, err
	}
	monitoring.Tracef("object %d: %d error px, %d skeleton px, %d strokes", id, errMask.Count(), len(g.Points), len(trees))

	var lines []scribble.Line
	for _, tree := range trees {
		path, err := strokegraph.LongestPath(tree)
		if err != nil {
			return nil, err
		}
		pts := make([][2]float64, len(path))
		for i, p := range path {
			pts[i] = [2]float64{float64(p[0]), float64(p[1])}
		}
		fit, err := curve.Fit(pts, r.params.NbPoints)
		if err != nil {
			return nil, err
		}
		norm := make([][2]float64, len(fit))
		for i, p := range fit {
			norm[i] = [2]float64{p[0] / float64(width), p[1] / float64(height)}
		}
		lines = append(lines, scribble.Line{Path: norm, ObjectID: id})
	}
	// Every stroke of the object spans its whole synthesis.
	begin, end := scribble.Timestamp(start), scribble.Timestamp(r.clock.Now())
	for i := range lines {
		lines[i].StartTime, lines[i].EndTime = begin, end
	}
	return lines, nil
}
