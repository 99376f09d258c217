package mask

import (
	"fmt"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

// RLEObject is one object's mask in COCO compressed run-length form.
type RLEObject struct {
	ObjectID int    `json:"object_id"`
	Counts   string `json:"counts"`
}

// RLEFrame is a single encoded frame. Size is [height, width].
type RLEFrame struct {
	Size    [2]int      `json:"size"`
	Objects []RLEObject `json:"objects"`
}

// RLEBatch is an encoded sequence. Size is [frames, height, width].
type RLEBatch struct {
	Size   [3]int        `json:"size"`
	Frames [][]RLEObject `json:"frames"`
}

// EncodeFrame run-length encodes every object present in m.
func EncodeFrame(m *LabelMap) RLEFrame {
	var present [256]bool
	for _, v := range m.Pix {
		present[v] = true
	}
	f := RLEFrame{Size: [2]int{m.Height, m.Width}, Objects: []RLEObject{}}
	for id := 1; id < 256; id++ {
		if !present[id] {
			continue
		}
		f.Objects = append(f.Objects, RLEObject{ObjectID: id, Counts: encodeCounts(runs(m, id))})
	}
	return f
}

// DecodeFrame rebuilds a label map. Later objects overwrite earlier ones.
func DecodeFrame(f RLEFrame) (*LabelMap, error) {
	h, w := f.Size[0], f.Size[1]
	if h <= 0 || w <= 0 {
		return nil, fault.Errorf(fault.ErrInvalidInput, "rle size %v", f.Size)
	}
	m := NewLabelMap(w, h)
	for _, o := range f.Objects {
		if o.ObjectID <= 0 || o.ObjectID > 255 {
			return nil, fault.Errorf(fault.ErrInvalidInput, "rle object id %d", o.ObjectID)
		}
		counts, err := decodeCounts(o.Counts)
		if err != nil {
			return nil, err
		}
		pos, fg := 0, false
		for _, c := range counts {
			if pos+int(c) > w*h {
				return nil, fault.Errorf(fault.ErrInvalidInput, "rle counts exceed %dx%d", h, w)
			}
			if fg {
				for i := pos; i < pos+int(c); i++ {
					// column-major position to row-major index
					m.Pix[(i%h)*w+i/h] = uint8(o.ObjectID)
				}
			}
			pos += int(c)
			fg = !fg
		}
	}
	return m, nil
}

// EncodeSequence encodes every frame of s.
func EncodeSequence(s Sequence) (*RLEBatch, error) {
	n, h, w, err := s.Shape()
	if err != nil {
		return nil, err
	}
	b := &RLEBatch{Size: [3]int{n, h, w}, Frames: make([][]RLEObject, n)}
	for i, f := range s {
		b.Frames[i] = EncodeFrame(f).Objects
	}
	return b, nil
}

// DecodeBatch decodes every frame of b.
func DecodeBatch(b *RLEBatch) (Sequence, error) {
	if b == nil || b.Size[0] != len(b.Frames) {
		return nil, fault.Errorf(fault.ErrInvalidInput, "rle batch frame count does not match size")
	}
	s := make(Sequence, len(b.Frames))
	for i, objs := range b.Frames {
		m, err := DecodeFrame(RLEFrame{Size: [2]int{b.Size[1], b.Size[2]}, Objects: objs})
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		s[i] = m
	}
	return s, nil
}

// runs returns alternating background/foreground run lengths over m in
// column-major order, starting with background.
func runs(m *LabelMap, id int) []uint32 {
	var counts []uint32
	prev, c := false, uint32(0)
	for x := 0; x < m.Width; x++ {
		for y := 0; y < m.Height; y++ {
			v := int(m.Pix[y*m.Width+x]) == id
			if v != prev {
				counts = append(counts, c)
				c, prev = 0, v
			}
			c++
		}
	}
	return append(counts, c)
}

// encodeCounts writes counts with 6 bits per character (offset 48). From the
// fourth count on, values are stored as deltas against counts[i-2].
func encodeCounts(counts []uint32) string {
	buf := make([]byte, 0, len(counts)*2)
	for i, c := range counts {
		x := int64(c)
		if i > 2 {
			x -= int64(counts[i-2])
		}
		for more := true; more; {
			ch := byte(x & 0x1f)
			x >>= 5
			if ch&0x10 != 0 {
				more = x != -1
			} else {
				more = x != 0
			}
			if more {
				ch |= 0x20
			}
			buf = append(buf, ch+48)
		}
	}
	return string(buf)
}

func decodeCounts(s string) ([]uint32, error) {
	var counts []uint32
	for p := 0; p < len(s); {
		var x int64
		k := 0
		for more := true; more; {
			if p >= len(s) {
				return nil, fault.Errorf(fault.ErrInvalidInput, "truncated rle string")
			}
			c := int64(s[p]) - 48
			if c < 0 || c > 63 {
				return nil, fault.Errorf(fault.ErrInvalidInput, "invalid rle character %q", s[p])
			}
			x |= (c & 0x1f) << (5 * k)
			more = c&0x20 != 0
			p++
			k++
			if !more && c&0x10 != 0 {
				x |= -1 << (5 * k)
			}
		}
		if len(counts) > 2 {
			x += int64(counts[len(counts)-2])
		}
		if x < 0 {
			return nil, fault.Errorf(fault.ErrInvalidInput, "negative rle count")
		}
		counts = append(counts, uint32(x))
	}
	return counts, nil
}
