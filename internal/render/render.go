// Package render turns normalised CAM heatmaps into images for display.
package render

import (
	"image"
	"image/color"
	"io"

	"github.com/chewxy/math32"
	"github.com/disintegration/imaging"

	"github.com/Snowy7/sanad/internal/cam"
)

// Colorize maps a [0, 1] heatmap onto the jet palette (blue low, red high).
// Values outside the range are clamped.
func Colorize(m cam.Map) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			img.SetNRGBA(x, y, jet(m.At(y, x)))
		}
	}
	return img
}

func jet(v float32) color.NRGBA {
	v = clamp01(v)
	return color.NRGBA{
		R: channel(1.5 - math32.Abs(4*v-3)),
		G: channel(1.5 - math32.Abs(4*v-2)),
		B: channel(1.5 - math32.Abs(4*v-1)),
		A: 255,
	}
}

func channel(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}

func clamp01(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Max(0, math32.Min(1, v))
}

// Overlay stretches the coloured heatmap over base and blends it in with the
// given opacity (0 keeps the X-ray, 1 shows only the heatmap).
func Overlay(base image.Image, heat cam.Map, opacity float64) *image.NRGBA {
	bounds := base.Bounds()
	colored := imaging.Resize(Colorize(heat), bounds.Dx(), bounds.Dy(), imaging.Linear)
	return imaging.Overlay(base, colored, image.Pt(0, 0), opacity)
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}
