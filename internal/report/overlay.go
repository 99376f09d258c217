package report

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/mask"
)

// objectColors is the DAVIS annotation palette for objects 1..8.
var objectColors = []color.RGBA{
	{128, 0, 0, 255}, {0, 128, 0, 255}, {128, 128, 0, 255}, {0, 0, 128, 255},
	{128, 0, 128, 255}, {0, 128, 128, 255}, {128, 128, 128, 255}, {64, 0, 0, 255},
}

// overlayPalette holds black, the dimmed object colours, then the stroke
// colours.
var overlayPalette = func() color.Palette {
	p := color.Palette{color.RGBA{0, 0, 0, 255}}
	for _, c := range objectColors {
		p = append(p, color.RGBA{c.R / 2, c.G / 2, c.B / 2, 255})
	}
	for _, c := range objectColors {
		p = append(p, color.RGBA{brighten(c.R), brighten(c.G), brighten(c.B), 255})
	}
	return p
}()

func brighten(v uint8) uint8 {
	if v == 0 {
		return 0
	}
	return uint8(min(255, 2*int(v)-1))
}

// OverlayPNG draws one ground truth frame dimmed with the rasterised strokes
// on top. strokes holds an object id per pixel, row-major, and a value below
// 1 where no stroke passes.
func OverlayPNG(w io.Writer, gt *mask.LabelMap, strokes []int) error {
	if len(strokes) != len(gt.Pix) {
		return fault.Errorf(fault.ErrInvalidInput, "%d stroke pixels for a %dx%d frame", len(strokes), gt.Width, gt.Height)
	}
	n := len(objectColors)
	img := image.NewPaletted(image.Rect(0, 0, gt.Width, gt.Height), overlayPalette)
	for i, v := range gt.Pix {
		var idx int
		if v != 0 && v != mask.IgnoreLabel {
			idx = 1 + (int(v)-1)%n
		}
		if s := strokes[i]; s > 0 {
			idx = 1 + n + (s-1)%n
		}
		img.Pix[i] = uint8(idx)
	}
	return png.Encode(w, img)
}
