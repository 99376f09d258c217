// Package scribble defines the correction strokes exchanged with callers and
// the helpers that combine and rasterise them.
package scribble

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

// Line is one stroke on one frame. Path points are [x, y] normalised to [0,1].
type Line struct {
	Path      [][2]float64 `json:"path"`
	ObjectID  int          `json:"object_id"`
	StartTime float64      `json:"start_time"`
	EndTime   float64      `json:"end_time"`
}

// Scribble holds the lines drawn on each frame of a sequence.
type Scribble struct {
	Sequence  string   `json:"sequence"`
	Scribbles [][]Line `json:"scribbles"`
}

// New returns a scribble with frames empty frames.
func New(sequence string, frames int) *Scribble {
	s := &Scribble{Sequence: sequence, Scribbles: make([][]Line, frames)}
	for f := range s.Scribbles {
		s.Scribbles[f] = []Line{}
	}
	return s
}

// Timestamp converts t to fractional Unix seconds as stored in Line times.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Clone returns a deep copy that shares no slices with s.
func (s *Scribble) Clone() *Scribble {
	if s == nil {
		return nil
	}
	c := &Scribble{Sequence: s.Sequence, Scribbles: make([][]Line, len(s.Scribbles))}
	for f, lines := range s.Scribbles {
		c.Scribbles[f] = make([]Line, len(lines))
		for i, l := range lines {
			l.Path = slices.Clone(l.Path)
			c.Scribbles[f][i] = l
		}
	}
	return c
}

// Fuse returns a new scribble with, per frame, the lines of a followed by the
// lines of b. Both must describe the same sequence and frame count.
func Fuse(a, b *Scribble) (*Scribble, error) {
	if a == nil || b == nil {
		return nil, fault.Errorf(fault.ErrInvalidInput, "fuse needs two scribbles")
	}
	if a.Sequence != b.Sequence {
		return nil, fault.Errorf(fault.ErrInvalidInput, "cannot fuse scribbles of %q and %q", a.Sequence, b.Sequence)
	}
	if len(a.Scribbles) != len(b.Scribbles) {
		return nil, fmt.Errorf("%w: cannot fuse scribbles with %d and %d frames",
			fault.ErrInvalidInput, len(a.Scribbles), len(b.Scribbles))
	}
	ca, cb := a.Clone(), b.Clone()
	for f := range ca.Scribbles {
		ca.Scribbles[f] = append(ca.Scribbles[f], cb.Scribbles[f]...)
	}
	return ca, nil
}

// IsEmpty reports whether no frame holds a line.
func (s *Scribble) IsEmpty() bool {
	for _, lines := range s.Scribbles {
		if len(lines) > 0 {
			return false
		}
	}
	return true
}

// AnnotatedFrames lists the frames holding at least one line.
func (s *Scribble) AnnotatedFrames() []int {
	var frames []int
	for f, lines := range s.Scribbles {
		if len(lines) > 0 {
			frames = append(frames, f)
		}
	}
	return frames
}

// AnnotatedFramesObject lists the frames holding a line for objectID.
func (s *Scribble) AnnotatedFramesObject(objectID int) []int {
	var frames []int
	for f, lines := range s.Scribbles {
		for _, l := range lines {
			if l.ObjectID == objectID {
				frames = append(frames, f)
				break
			}
		}
	}
	return frames
}

// Validate checks the invariants every scribble must hold.
func (s *Scribble) Validate() error {
	for f, lines := range s.Scribbles {
		for i, l := range lines {
			if len(l.Path) < 2 {
				return fault.Errorf(fault.ErrInvalidInput, "frame %d line %d has %d points", f, i, len(l.Path))
			}
			for _, p := range l.Path {
				if p[0] < 0 || p[0] > 1 || p[1] < 0 || p[1] > 1 {
					return fault.Errorf(fault.ErrInvalidInput, "frame %d line %d point %v outside [0,1]", f, i, p)
				}
			}
		}
	}
	return nil
}

// Decode reads a scribble in its JSON form. Frames given as null decode to
// empty frames.
func Decode(r io.Reader) (*Scribble, error) {
	var s Scribble
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fault.Errorf(fault.ErrInvalidInput, "decode scribble: %v", err)
	}
	for f := range s.Scribbles {
		if s.Scribbles[f] == nil {
			s.Scribbles[f] = []Line{}
		}
	}
	return &s, nil
}
