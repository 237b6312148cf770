package cam

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Upsample resizes m to targetH x targetW with bilinear interpolation.
// Pixel centres are aligned (half-pixel convention) and sample coordinates
// are clamped to the source grid, so borders repeat the edge value. Works
// for shrinking as well; equal dimensions reproduce the input.
func Upsample(m Map, targetH, targetW int) (Map, error) {
	if targetH <= 0 || targetW <= 0 {
		return Map{}, fmt.Errorf("%w: target %dx%d", ErrInvalidSize, targetH, targetW)
	}
	if m.H <= 0 || m.W <= 0 || len(m.Data) != m.H*m.W {
		return Map{}, fmt.Errorf("%w: source %dx%d with %d values", ErrInvalidSize, m.H, m.W, len(m.Data))
	}

	out := NewMap(targetH, targetW)
	scaleY := float32(m.H) / float32(targetH)
	scaleX := float32(m.W) / float32(targetW)

	for y := 0; y < targetH; y++ {
		y0, y1, dy := samplePoints(y, scaleY, m.H)
		for x := 0; x < targetW; x++ {
			x0, x1, dx := samplePoints(x, scaleX, m.W)

			top := lerp(m.At(y0, x0), m.At(y0, x1), dx)
			bottom := lerp(m.At(y1, x0), m.At(y1, x1), dx)
			out.Set(y, x, lerp(top, bottom, dy))
		}
	}
	return out, nil
}

// samplePoints maps destination index i back onto a source axis of length n.
func samplePoints(i int, scale float32, n int) (lo, hi int, frac float32) {
	src := (float32(i)+0.5)*scale - 0.5
	src = math32.Max(0, math32.Min(src, float32(n-1)))

	lo = int(math32.Floor(src))
	hi = min(lo+1, n-1)
	return lo, hi, src - float32(lo)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// NormalizeForDisplay rescales m into [0, 1] with its own min and max.
// A flat map (max == min) yields all zeros. The range is taken in float64 so
// maps spanning most of the float32 range do not overflow.
func NormalizeForDisplay(m Map) Map {
	out := Map{H: m.H, W: m.W, Data: make([]float32, len(m.Data))}
	if len(m.Data) == 0 {
		return out
	}

	lo, hi := m.Data[0], m.Data[0]
	for _, v := range m.Data[1:] {
		lo = math32.Min(lo, v)
		hi = math32.Max(hi, v)
	}
	if hi == lo {
		return out
	}

	span := float64(hi) - float64(lo)
	for i, v := range m.Data {
		out.Data[i] = float32((float64(v) - float64(lo)) / span)
	}
	return out
}
