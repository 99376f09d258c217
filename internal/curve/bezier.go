// Package curve smooths stroke paths into Bézier curves.
package curve

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

// Fit evaluates the Bézier curve whose control points are points at
// sampleCount parameter values evenly spaced on [0, 1]. When there are more
// points than samples the points are returned unchanged.
//
// Point i is weighted by C(n,i) t^(n-i) (1-t)^i with n = len(points)-1, so
// the curve runs from the last control point (t=0) to the first (t=1).
func Fit(points [][2]float64, sampleCount int) ([][2]float64, error) {
	if len(points) == 0 {
		return nil, fault.Errorf(fault.ErrInvalidInput, "no control points")
	}
	if sampleCount < 1 {
		return nil, fault.Errorf(fault.ErrInvalidInput, "sample count %d", sampleCount)
	}
	if len(points) > sampleCount {
		return points, nil
	}

	n := len(points) - 1
	ctrl := mat.NewDense(len(points), 2, nil)
	for i, p := range points {
		ctrl.Set(i, 0, p[0])
		ctrl.Set(i, 1, p[1])
	}

	basis := mat.NewDense(sampleCount, len(points), nil)
	for s := 0; s < sampleCount; s++ {
		t := 0.0
		if sampleCount > 1 {
			t = float64(s) / float64(sampleCount-1)
		}
		for i := 0; i <= n; i++ {
			basis.Set(s, i, bernstein(n, i, t))
		}
	}

	var out mat.Dense
	out.Mul(basis, ctrl)
	fit := make([][2]float64, sampleCount)
	for s := range fit {
		fit[s] = [2]float64{out.At(s, 0), out.At(s, 1)}
	}
	return fit, nil
}

// bernstein returns C(n,i) t^(n-i) (1-t)^i computed in log space.
func bernstein(n, i int, t float64) float64 {
	logW := combin.LogGeneralizedBinomial(float64(n), float64(i))
	a, b := n-i, i
	switch {
	case a > 0 && t == 0, b > 0 && t == 1:
		return 0
	}
	if a > 0 {
		logW += float64(a) * math.Log(t)
	}
	if b > 0 {
		logW += float64(b) * math.Log1p(-t)
	}
	return math.Exp(logW)
}
