package model

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// Preprocess converts an X-ray to the single-channel [size*size] input the
// exported graphs expect: grayscale, resized, scaled to [-1, 1].
func Preprocess(img image.Image, size int) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	inputData := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray := color.GrayModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			inputData[y*width+x] = float32(gray.Y)/127.5 - 1
		}
	}
	return inputData
}
