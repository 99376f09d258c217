package curve

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

func TestFitLength(t *testing.T) {
	for _, n := range []int{1, 2, 5, 50, 300} {
		points := make([][2]float64, n)
		for i := range points {
			points[i] = [2]float64{float64(i), float64(i * i % 7)}
		}
		got, err := Fit(points, 300)
		require.NoError(t, err)
		assert.Len(t, got, 300, "n=%d", n)
	}
}

func TestFitReturnsInputWhenDense(t *testing.T) {
	points := [][2]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	got, err := Fit(points, 3)
	require.NoError(t, err)
	assert.Equal(t, points, got)
}

func TestFitEndpoints(t *testing.T) {
	points := [][2]float64{{0, 0}, {10, 5}, {20, 0}}
	got, err := Fit(points, 11)
	require.NoError(t, err)
	// t=0 weights the last control point, t=1 the first.
	assert.InDelta(t, 20, got[0][0], 1e-9)
	assert.InDelta(t, 0, got[0][1], 1e-9)
	assert.InDelta(t, 0, got[10][0], 1e-9)
	assert.InDelta(t, 0, got[10][1], 1e-9)
	// Midpoint of a quadratic: 0.25*p0 + 0.5*p1 + 0.25*p2.
	assert.InDelta(t, 10, got[5][0], 1e-9)
	assert.InDelta(t, 2.5, got[5][1], 1e-9)
}

func TestFitStraightLineStaysOnLine(t *testing.T) {
	points := make([][2]float64, 200)
	for i := range points {
		points[i] = [2]float64{float64(i), 2 * float64(i)}
	}
	got, err := Fit(points, 1000)
	require.NoError(t, err)
	for _, p := range got {
		if math.IsNaN(p[0]) || math.IsInf(p[0], 0) {
			t.Fatalf("non-finite sample %v", p)
		}
		assert.InDelta(t, 2*p[0], p[1], 1e-6)
	}
}

func TestFitSinglePoint(t *testing.T) {
	got, err := Fit([][2]float64{{3, 4}}, 4)
	require.NoError(t, err)
	for _, p := range got {
		assert.Equal(t, [2]float64{3, 4}, p)
	}
}

func TestFitRejectsBadInput(t *testing.T) {
	_, err := Fit(nil, 10)
	assert.True(t, errors.Is(err, fault.ErrInvalidInput))
	_, err = Fit([][2]float64{{0, 0}}, 0)
	assert.True(t, errors.Is(err, fault.ErrInvalidInput))
}
