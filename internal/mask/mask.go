// Package mask holds the raster types shared by the robot, the metrics and
// the wire codecs: per-frame label maps, frame sequences and binary masks.
package mask

import (
	"fmt"
	"sort"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

// IgnoreLabel marks void pixels in DAVIS annotations.
const IgnoreLabel = 255

// LabelMap is one frame of object ids stored row-major.
// 0 is background, 1..N are objects.
type LabelMap struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewLabelMap returns an all-background label map.
func NewLabelMap(width, height int) *LabelMap {
	return &LabelMap{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// At returns the label at column x, row y.
func (m *LabelMap) At(x, y int) uint8 { return m.Pix[y*m.Width+x] }

// Set stores v at column x, row y.
func (m *LabelMap) Set(x, y int, v uint8) { m.Pix[y*m.Width+x] = v }

// Object returns the binary mask of pixels labelled id.
func (m *LabelMap) Object(id int) *Binary {
	b := NewBinary(m.Width, m.Height)
	for i, v := range m.Pix {
		b.Pix[i] = int(v) == id
	}
	return b
}

// Clone returns a deep copy.
func (m *LabelMap) Clone() *LabelMap {
	c := &LabelMap{Width: m.Width, Height: m.Height, Pix: make([]uint8, len(m.Pix))}
	copy(c.Pix, m.Pix)
	return c
}

// Sequence is an ordered list of equally sized frames.
type Sequence []*LabelMap

// NewSequence returns frames all-background label maps.
func NewSequence(frames, width, height int) Sequence {
	s := make(Sequence, frames)
	for i := range s {
		s[i] = NewLabelMap(width, height)
	}
	return s
}

// Shape returns frames, height and width. It fails when frames disagree in size.
func (s Sequence) Shape() (frames, height, width int, err error) {
	if len(s) == 0 {
		return 0, 0, 0, fault.Errorf(fault.ErrInvalidInput, "empty sequence")
	}
	width, height = s[0].Width, s[0].Height
	for i, f := range s {
		if f == nil || f.Width != width || f.Height != height || len(f.Pix) != width*height {
			return 0, 0, 0, fault.Errorf(fault.ErrInvalidInput, "frame %d does not match %dx%d", i, width, height)
		}
	}
	return len(s), height, width, nil
}

// SameShape reports an input error unless a and b have identical shapes.
func SameShape(a, b Sequence) error {
	fa, ha, wa, err := a.Shape()
	if err != nil {
		return err
	}
	fb, hb, wb, err := b.Shape()
	if err != nil {
		return err
	}
	if fa != fb || ha != hb || wa != wb {
		return fmt.Errorf("%w: shape mismatch (%d,%d,%d) vs (%d,%d,%d)",
			fault.ErrInvalidInput, fa, ha, wa, fb, hb, wb)
	}
	return nil
}

// ObjectIDs lists the object ids of a ground truth sequence. With n > 0 the
// ids are 1..n. Otherwise they are the distinct labels strictly between
// background and ignore, in ascending order.
func ObjectIDs(s Sequence, n int, ignore uint8) []int {
	if n > 0 {
		ids := make([]int, n)
		for i := range ids {
			ids[i] = i + 1
		}
		return ids
	}
	var seen [256]bool
	for _, f := range s {
		for _, v := range f.Pix {
			seen[v] = true
		}
	}
	var ids []int
	for v := 1; v < int(ignore); v++ {
		if seen[v] {
			ids = append(ids, v)
		}
	}
	sort.Ints(ids)
	return ids
}

// Binary is a row-major boolean raster.
type Binary struct {
	Width  int
	Height int
	Pix    []bool
}

// NewBinary returns an all-false mask.
func NewBinary(width, height int) *Binary {
	return &Binary{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// At returns the pixel at column x, row y; out-of-range reads are false.
func (b *Binary) At(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return false
	}
	return b.Pix[y*b.Width+x]
}

// Set stores v at column x, row y.
func (b *Binary) Set(x, y int, v bool) { b.Pix[y*b.Width+x] = v }

// Count returns the number of true pixels.
func (b *Binary) Count() int {
	n := 0
	for _, v := range b.Pix {
		if v {
			n++
		}
	}
	return n
}

// Empty reports whether no pixel is set.
func (b *Binary) Empty() bool {
	for _, v := range b.Pix {
		if v {
			return false
		}
	}
	return true
}

// Pad returns a copy with n false pixels added on every side.
func (b *Binary) Pad(n int) *Binary {
	out := NewBinary(b.Width+2*n, b.Height+2*n)
	for y := 0; y < b.Height; y++ {
		copy(out.Pix[(y+n)*out.Width+n:(y+n)*out.Width+n+b.Width], b.Pix[y*b.Width:(y+1)*b.Width])
	}
	return out
}

// Crop returns a copy with n pixels removed from every side.
func (b *Binary) Crop(n int) *Binary {
	out := NewBinary(b.Width-2*n, b.Height-2*n)
	for y := 0; y < out.Height; y++ {
		copy(out.Pix[y*out.Width:(y+1)*out.Width], b.Pix[(y+n)*b.Width+n:(y+n)*b.Width+n+out.Width])
	}
	return out
}

// ErrorMask marks the pixels where gt is id and pred is not.
func ErrorMask(gt, pred *LabelMap, id int) *Binary {
	b := NewBinary(gt.Width, gt.Height)
	for i := range gt.Pix {
		b.Pix[i] = int(gt.Pix[i]) == id && int(pred.Pix[i]) != id
	}
	return b
}
