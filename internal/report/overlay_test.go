package report

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/mask"
)

func TestOverlayPNG(t *testing.T) {
	gt := mask.NewLabelMap(3, 2)
	gt.Set(0, 0, 1)
	gt.Set(1, 0, 2)
	gt.Set(2, 0, mask.IgnoreLabel)
	strokes := []int{-1, -1, -1, 1, 2, -1}

	var buf bytes.Buffer
	require.NoError(t, OverlayPNG(&buf, gt, strokes))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	require.IsType(t, &image.Paletted{}, img)

	rgba := func(x, y int) color.RGBA {
		return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
	}
	assert.Equal(t, color.RGBA{64, 0, 0, 255}, rgba(0, 0), "object 1 dimmed")
	assert.Equal(t, color.RGBA{0, 64, 0, 255}, rgba(1, 0), "object 2 dimmed")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, rgba(2, 0), "void is background")
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, rgba(0, 1), "stroke of object 1")
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, rgba(1, 1), "stroke of object 2")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, rgba(2, 1))

	err = OverlayPNG(&buf, gt, strokes[:4])
	assert.ErrorIs(t, err, fault.ErrInvalidInput)
}
