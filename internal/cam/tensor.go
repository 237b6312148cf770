package cam

import (
	"fmt"

	"gorgonia.org/tensor"
)

// FeatureTensor is a [C, H, W] float32 activation grid produced by the
// classifier backbone. It is never mutated once built.
type FeatureTensor struct {
	data    []float32
	spatial *tensor.Dense // [C, H*W] view over data
	c, h, w int
}

// NewFeatureTensor wraps a row-major [C, H, W] buffer. The slice is not copied.
func NewFeatureTensor(c, h, w int, data []float32) (*FeatureTensor, error) {
	if c <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("%w: feature shape [%d %d %d]", ErrInvalidSize, c, h, w)
	}
	if len(data) != c*h*w {
		return nil, fmt.Errorf("%w: %d values for feature shape [%d %d %d]", ErrDimensionMismatch, len(data), c, h, w)
	}
	return &FeatureTensor{
		data:    data,
		spatial: tensor.New(tensor.WithShape(c, h*w), tensor.WithBacking(data)),
		c:       c,
		h:       h,
		w:       w,
	}, nil
}

// Shape returns channels, height and width.
func (f *FeatureTensor) Shape() (c, h, w int) {
	return f.c, f.h, f.w
}

// Channel returns the [H*W] plane of channel c.
func (f *FeatureTensor) Channel(c int) []float32 {
	plane := f.h * f.w
	return f.data[c*plane : (c+1)*plane : (c+1)*plane]
}

// Map is a row-major 2-D grid of float32 values.
type Map struct {
	H, W int
	Data []float32
}

// NewMap allocates a zeroed h x w map.
func NewMap(h, w int) Map {
	return Map{H: h, W: w, Data: make([]float32, h*w)}
}

func (m Map) At(y, x int) float32 {
	return m.Data[y*m.W+x]
}

func (m Map) Set(y, x int, v float32) {
	m.Data[y*m.W+x] = v
}

// Rows splits the map into one slice per row, for JSON output.
func (m Map) Rows() [][]float32 {
	rows := make([][]float32, m.H)
	for y := range rows {
		rows[y] = m.Data[y*m.W : (y+1)*m.W : (y+1)*m.W]
	}
	return rows
}
