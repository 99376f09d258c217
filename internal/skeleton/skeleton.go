// Package skeleton reduces binary error regions to one-pixel-wide skeletons.
//
// A region is first smoothed by a morphological opening whose disk radius
// scales with the region's size, then thinned to its medial axis.
package skeleton

import (
	"math"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/mask"
)

// shrink is the factor applied to the opening radius when the opening erases
// the whole region.
const shrink = 0.9

// Skeletonize smooths m with a disk opening and returns its medial axis.
//
// The disk radius is min(kernelFraction*sqrt(area)/2, maxKernelRadius). When
// the opening leaves nothing the radius shrinks by 10% and the opening is
// retried until it survives or the radius drops to 1, in which case the
// result is empty.
func Skeletonize(m *mask.Binary, kernelFraction, maxKernelRadius float64) (*mask.Binary, error) {
	if kernelFraction < 0 || kernelFraction >= 1 {
		return nil, fault.Errorf(fault.ErrInvalidInput, "kernel fraction %v not in [0,1)", kernelFraction)
	}
	side := math.Sqrt(float64(m.Count()))
	radius := math.Min(kernelFraction*side*0.5, maxKernelRadius)

	opened := m
	for radius > 1 {
		opened = Open(m, radius)
		if !opened.Empty() {
			break
		}
		radius *= shrink
	}
	if opened.Empty() {
		return mask.NewBinary(m.Width, m.Height), nil
	}
	return MedialAxis(opened.Pad(1)).Crop(1), nil
}

// Open is a rank-minimum followed by a rank-maximum over a disk of radius r.
// Only pixels inside the image take part in either filter.
func Open(m *mask.Binary, r float64) *mask.Binary {
	disk := mask.Disk(r)
	return mask.Dilate(mask.Erode(m, disk), disk)
}
