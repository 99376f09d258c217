package skeleton

import (
	"math"
	"slices"

	"github.com/banshee-data/interactive.eval/internal/mask"
)

// Neighbourhood bits, row-major over the 3x3 window; the centre is bit 4.
const centreBit = 1 << 4

var (
	keepTable       [512]bool
	cornernessTable [512]int
)

func init() {
	for idx := 0; idx < 512; idx++ {
		n := popcount9(idx)
		cornernessTable[idx] = 9 - n
		if idx&centreBit == 0 {
			continue
		}
		keepTable[idx] = components8(idx) != components8(idx&^centreBit) || n < 3
	}
}

func popcount9(idx int) int {
	n := 0
	for b := 0; b < 9; b++ {
		if idx&(1<<b) != 0 {
			n++
		}
	}
	return n
}

// components8 counts 8-connected components in a 3x3 bit pattern.
func components8(idx int) int {
	var seen [9]bool
	count := 0
	for start := 0; start < 9; start++ {
		if idx&(1<<start) == 0 || seen[start] {
			continue
		}
		count++
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pr, pc := p/3, p%3
			for q := 0; q < 9; q++ {
				if seen[q] || idx&(1<<q) == 0 {
					continue
				}
				qr, qc := q/3, q%3
				if abs(qr-pr) <= 1 && abs(qc-pc) <= 1 {
					seen[q] = true
					stack = append(stack, q)
				}
			}
		}
	}
	return count
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// neighbourhood returns the 3x3 bit pattern around (x, y); outside pixels are 0.
func neighbourhood(m *mask.Binary, x, y int) int {
	idx := 0
	bit := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if m.At(x+dx, y+dy) {
				idx |= 1 << bit
			}
			bit++
		}
	}
	return idx
}

// MedialAxis thins m to its medial axis.
//
// Foreground pixels are visited once, nearest to the background first, then
// the most corner-like first, then in row-major order. A visited pixel is
// removed unless removing it would split its 3x3 neighbourhood or it has
// fewer than two foreground neighbours.
func MedialAxis(m *mask.Binary) *mask.Binary {
	dist := DistanceTransform(m)
	out := &mask.Binary{Width: m.Width, Height: m.Height, Pix: slices.Clone(m.Pix)}

	type candidate struct {
		index  int
		dist   float64
		corner int
	}
	var order []candidate
	for i, v := range m.Pix {
		if !v {
			continue
		}
		order = append(order, candidate{
			index:  i,
			dist:   dist[i],
			corner: cornernessTable[neighbourhood(m, i%m.Width, i/m.Width)],
		})
	}
	slices.SortFunc(order, func(a, b candidate) int {
		switch {
		case a.dist != b.dist:
			if a.dist < b.dist {
				return -1
			}
			return 1
		case a.corner != b.corner:
			return a.corner - b.corner
		default:
			return a.index - b.index
		}
	})

	for _, c := range order {
		x, y := c.index%m.Width, c.index/m.Width
		out.Pix[c.index] = keepTable[neighbourhood(out, x, y)]
	}
	return out
}

const inf = 1e20

// DistanceTransform returns, for every pixel, the Euclidean distance to the
// nearest false pixel (0 for false pixels). A mask with no false pixel yields
// +Inf everywhere.
func DistanceTransform(m *mask.Binary) []float64 {
	w, h := m.Width, m.Height
	d := make([]float64, w*h)
	for i, v := range m.Pix {
		if v {
			d[i] = inf
		}
	}
	n := max(w, h)
	f := make([]float64, n)
	out := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			f[y] = d[y*w+x]
		}
		edt1d(f[:h], out[:h], v, z)
		for y := 0; y < h; y++ {
			d[y*w+x] = out[y]
		}
	}
	for y := 0; y < h; y++ {
		copy(f[:w], d[y*w:(y+1)*w])
		edt1d(f[:w], out[:w], v, z)
		copy(d[y*w:(y+1)*w], out[:w])
	}
	for i := range d {
		if d[i] >= inf {
			d[i] = math.Inf(1)
			continue
		}
		d[i] = math.Sqrt(d[i])
	}
	return d
}

// edt1d is the lower envelope of parabolas squared distance transform of
// Felzenszwalb and Huttenlocher.
func edt1d(f, d []float64, v []int, z []float64) {
	n := len(f)
	k := 0
	v[0] = 0
	z[0] = -inf
	z[1] = inf
	for q := 1; q < n; q++ {
		s := intersect(f, v[k], q)
		for k > 0 && s <= z[k] {
			k--
			s = intersect(f, v[k], q)
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = inf
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		diff := float64(q - v[k])
		d[q] = diff*diff + f[v[k]]
	}
}

// intersect returns where the parabolas rooted at p and q cross.
func intersect(f []float64, p, q int) float64 {
	return ((f[q] + float64(q*q)) - (f[p] + float64(p*p))) / float64(2*q-2*p)
}
