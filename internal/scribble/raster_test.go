package scribble

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBresenham(t *testing.T) {
	tests := []struct {
		name string
		in   [][2]int
		want [][2]int
	}{
		{"single", [][2]int{{2, 2}}, [][2]int{{2, 2}}},
		{"horizontal", [][2]int{{0, 0}, {3, 0}}, [][2]int{{0, 0}, {1, 0}, {2, 0}, {3, 0}}},
		{"diagonal", [][2]int{{0, 0}, {2, 2}}, [][2]int{{0, 0}, {1, 1}, {2, 2}}},
		{"reverse", [][2]int{{0, 2}, {0, 0}}, [][2]int{{0, 2}, {0, 1}, {0, 0}}},
		{"polyline", [][2]int{{0, 0}, {1, 0}, {1, 2}}, [][2]int{{0, 0}, {1, 0}, {1, 1}, {1, 2}}},
	}
	for _, tt := range tests {
		if got := Bresenham(tt.in); !cmp.Equal(got, tt.want) {
			t.Errorf("%s: Bresenham(%v) = %v, want %v", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestBresenhamSteps(t *testing.T) {
	got := Bresenham([][2]int{{0, 0}, {7, 3}})
	if got[len(got)-1] != [2]int{7, 3} {
		t.Fatalf("line ends at %v", got[len(got)-1])
	}
	for i := 1; i < len(got); i++ {
		dx, dy := abs(got[i][0]-got[i-1][0]), abs(got[i][1]-got[i-1][1])
		if dx > 1 || dy > 1 || dx+dy == 0 {
			t.Fatalf("step %d from %v to %v is not 8-connected", i, got[i-1], got[i])
		}
	}
}

func TestToMask(t *testing.T) {
	s := New("x", 2)
	s.Scribbles[1] = []Line{line(3, [2]float64{0, 0}, [2]float64{1, 0})}

	masks, err := ToMask(s, 5, 4, DefaultMaskOptions())
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range masks[0] {
		if v != -1 {
			t.Fatalf("empty frame has value %d", v)
		}
	}
	for x := 0; x < 5; x++ {
		if masks[1][x] != 3 {
			t.Errorf("pixel (%d,0) = %d, want 3", x, masks[1][x])
		}
	}
	if masks[1][5] != -1 {
		t.Errorf("pixel (0,1) = %d, want -1", masks[1][5])
	}

	sparse, err := ToMask(s, 5, 4, MaskOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if sparse[1][0] != 3 || sparse[1][4] != 3 || sparse[1][2] != 0 {
		t.Errorf("points-only frame = %v", sparse[1][:5])
	}
}

func TestToMaskBezier(t *testing.T) {
	s := New("x", 1)
	s.Scribbles[0] = []Line{line(1, [2]float64{0, 0}, [2]float64{1, 1})}
	masks, err := ToMask(s, 10, 10, MaskOptions{BezierPoints: 50, Bresenham: true})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if masks[0][i*10+i] != 1 {
			t.Errorf("diagonal pixel %d not drawn", i)
		}
	}
}

func TestToPoints(t *testing.T) {
	s := sample()
	pts := ToPoints(s, 0, 0)
	if len(pts) != 4 {
		t.Fatalf("len = %d, want 4", len(pts))
	}
	if pts[2] != (Point{Frame: 2, X: 0.5, Y: 0.5, ObjectID: 2}) {
		t.Errorf("pts[2] = %+v", pts[2])
	}
	scaled := ToPoints(s, 11, 21)
	if scaled[3] != (Point{Frame: 2, X: 9, Y: 2, ObjectID: 2}) {
		t.Errorf("scaled[3] = %+v", scaled[3])
	}
}
