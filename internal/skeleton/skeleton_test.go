package skeleton

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/mask"
)

func rect(w, h, x0, y0, x1, y1 int) *mask.Binary {
	m := mask.NewBinary(w, h)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			m.Set(x, y, true)
		}
	}
	return m
}

// components counts 8-connected components of m.
func components(m *mask.Binary) int {
	seen := make([]bool, len(m.Pix))
	n := 0
	for i, v := range m.Pix {
		if !v || seen[i] {
			continue
		}
		n++
		stack := []int{i}
		seen[i] = true
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			px, py := p%m.Width, p/m.Width
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if m.At(px+dx, py+dy) {
						q := (py+dy)*m.Width + px + dx
						if !seen[q] {
							seen[q] = true
							stack = append(stack, q)
						}
					}
				}
			}
		}
	}
	return n
}

func TestDisk(t *testing.T) {
	tests := []struct {
		r    float64
		want int
	}{
		{0, 1},
		{1, 5},
		{1.5, 9},
		{2, 13},
	}
	for _, tt := range tests {
		if got := len(mask.Disk(tt.r)); got != tt.want {
			t.Errorf("len(mask.Disk(%v)) = %d, want %d", tt.r, got, tt.want)
		}
	}
}

func TestOpenRemovesSpecks(t *testing.T) {
	m := rect(30, 30, 5, 5, 14, 14)
	m.Set(25, 25, true)

	got := Open(m, 2)
	if got.At(25, 25) {
		t.Error("opening kept an isolated speck")
	}
	if !got.At(10, 10) {
		t.Error("opening removed the square interior")
	}
	for i, v := range got.Pix {
		if v && !m.Pix[i] {
			t.Fatalf("opening added pixel %d outside the input", i)
		}
	}
}

func TestOpenKeepsImageBorder(t *testing.T) {
	// Out-of-image pixels do not take part in the rank filters, so a region
	// touching the border is not eroded from that side.
	m := rect(10, 10, 0, 0, 9, 4)
	got := Open(m, 1)
	if !got.At(0, 0) || !got.At(9, 0) {
		t.Error("opening eroded pixels on the image border")
	}
}

func TestDistanceTransform(t *testing.T) {
	m := rect(7, 7, 1, 1, 5, 5)
	d := DistanceTransform(m)
	check := func(x, y int, want float64) {
		t.Helper()
		if got := d[y*7+x]; math.Abs(got-want) > 1e-9 {
			t.Errorf("d(%d,%d) = %v, want %v", x, y, got, want)
		}
	}
	check(0, 0, 0)
	check(1, 1, 1)
	check(2, 2, 2)
	check(3, 3, 3)
	check(2, 1, 1)

	all := rect(3, 3, 0, 0, 2, 2)
	for i, v := range DistanceTransform(all) {
		if !math.IsInf(v, 1) {
			t.Errorf("d[%d] = %v, want +Inf without background", i, v)
		}
	}
}

func TestDistanceTransformDiagonal(t *testing.T) {
	m := rect(5, 5, 0, 0, 4, 4)
	m.Set(0, 0, false)
	d := DistanceTransform(m)
	if got, want := d[2*5+2], math.Sqrt(8); math.Abs(got-want) > 1e-9 {
		t.Errorf("d(2,2) = %v, want %v", got, want)
	}
}

func TestMedialAxisOfLineIsLine(t *testing.T) {
	m := rect(20, 5, 2, 2, 17, 2).Pad(1)
	got := MedialAxis(m)
	for i := range m.Pix {
		if got.Pix[i] != m.Pix[i] {
			t.Fatalf("medial axis of a line changed pixel %d", i)
		}
	}
}

func TestMedialAxisOfBar(t *testing.T) {
	m := rect(50, 27, 5, 10, 44, 16).Pad(1)
	got := MedialAxis(m).Crop(1)
	orig := m.Crop(1)

	if got.Empty() {
		t.Fatal("medial axis is empty")
	}
	for i, v := range got.Pix {
		if v && !orig.Pix[i] {
			t.Fatalf("medial axis pixel %d outside the region", i)
		}
	}
	if !got.At(25, 13) {
		t.Error("medial axis misses the bar centre")
	}
	if got.At(25, 10) || got.At(25, 16) {
		t.Error("medial axis kept the bar edge")
	}
	if n := components(got); n != 1 {
		t.Errorf("medial axis has %d components, want 1", n)
	}
}

func TestSkeletonize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got, err := Skeletonize(mask.NewBinary(8, 8), 0.2, 16)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Empty() {
			t.Error("skeleton of empty mask is not empty")
		}
	})

	t.Run("opening erases thin line", func(t *testing.T) {
		m := rect(120, 11, 5, 5, 104, 5)
		got, err := Skeletonize(m, 0.5, 16)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Empty() {
			t.Errorf("expected empty skeleton, got %d pixels", got.Count())
		}
	})

	t.Run("small radius skips opening", func(t *testing.T) {
		m := rect(120, 11, 5, 5, 104, 5)
		got, err := Skeletonize(m, 0.1, 16)
		if err != nil {
			t.Fatal(err)
		}
		if got.Count() != m.Count() {
			t.Errorf("skeleton has %d pixels, want %d", got.Count(), m.Count())
		}
	})

	t.Run("blob keeps same size", func(t *testing.T) {
		m := rect(60, 40, 10, 10, 49, 29)
		got, err := Skeletonize(m, 0.15, 16)
		if err != nil {
			t.Fatal(err)
		}
		if got.Width != 60 || got.Height != 40 {
			t.Fatalf("size = %dx%d, want 60x40", got.Width, got.Height)
		}
		if got.Empty() || components(got) != 1 {
			t.Errorf("skeleton has %d components, want 1", components(got))
		}
	})

	t.Run("kernel fraction out of range", func(t *testing.T) {
		for _, k := range []float64{-0.1, 1, 2} {
			if _, err := Skeletonize(mask.NewBinary(2, 2), k, 16); !errors.Is(err, fault.ErrInvalidInput) {
				t.Errorf("kernel %v: err = %v, want ErrInvalidInput", k, err)
			}
		}
	})
}
