package scribble

import (
	"github.com/banshee-data/interactive.eval/internal/curve"
)

// MaskOptions controls how lines are drawn by ToMask.
type MaskOptions struct {
	// Default fills pixels no line touches.
	Default int
	// BezierPoints resamples each path as a Bézier curve when positive.
	BezierPoints int
	// Bresenham joins consecutive points; otherwise only the points are drawn.
	Bresenham bool
}

// DefaultMaskOptions draws connected lines over a background of -1.
func DefaultMaskOptions() MaskOptions {
	return MaskOptions{Default: -1, Bresenham: true}
}

// ToMask rasterises each frame into a row-major grid of width × height object
// ids. Normalised coordinates scale by (width-1, height-1).
func ToMask(s *Scribble, width, height int, opts MaskOptions) ([][]int, error) {
	out := make([][]int, len(s.Scribbles))
	sx, sy := float64(width-1), float64(height-1)
	for f, lines := range s.Scribbles {
		frame := make([]int, width*height)
		for i := range frame {
			frame[i] = opts.Default
		}
		for _, l := range lines {
			path := l.Path
			if opts.BezierPoints > 0 && len(path) > 0 {
				var err error
				if path, err = curve.Fit(path, opts.BezierPoints); err != nil {
					return nil, err
				}
			}
			pts := make([][2]int, len(path))
			for i, p := range path {
				pts[i] = [2]int{int(p[0] * sx), int(p[1] * sy)}
			}
			if opts.Bresenham {
				pts = Bresenham(pts)
			}
			for _, p := range pts {
				if p[0] < 0 || p[1] < 0 || p[0] >= width || p[1] >= height {
					continue
				}
				frame[p[1]*width+p[0]] = l.ObjectID
			}
		}
		out[f] = frame
	}
	return out, nil
}

// Point is one path point tagged with its frame and object.
type Point struct {
	Frame    int
	X, Y     float64
	ObjectID int
}

// ToPoints flattens every path point. When width and height are positive the
// coordinates are scaled by (width-1, height-1) and truncated to pixels.
func ToPoints(s *Scribble, width, height int) []Point {
	var pts []Point
	for f, lines := range s.Scribbles {
		for _, l := range lines {
			for _, p := range l.Path {
				x, y := p[0], p[1]
				if width > 0 && height > 0 {
					x = float64(int(x * float64(width-1)))
					y = float64(int(y * float64(height-1)))
				}
				pts = append(pts, Point{Frame: f, X: x, Y: y, ObjectID: l.ObjectID})
			}
		}
	}
	return pts
}

// Bresenham joins consecutive points with 8-connected pixel lines. Shared
// segment endpoints appear once.
func Bresenham(points [][2]int) [][2]int {
	if len(points) < 2 {
		return points
	}
	out := [][2]int{points[0]}
	for i := 1; i < len(points); i++ {
		out = appendSegment(out, points[i-1], points[i])
	}
	return out
}

// appendSegment appends the pixels from a (exclusive) to b (inclusive).
func appendSegment(out [][2]int, a, b [2]int) [][2]int {
	x0, y0 := a[0], a[1]
	dx, dy := abs(b[0]-x0), -abs(b[1]-y0)
	sx, sy := 1, 1
	if b[0] < x0 {
		sx = -1
	}
	if b[1] < y0 {
		sy = -1
	}
	e := dx + dy
	for x0 != b[0] || y0 != b[1] {
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
		out = append(out, [2]int{x0, y0})
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
