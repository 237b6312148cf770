// Package cam reconstructs class activation maps from a classifier's last
// convolutional features and its linear-layer weights.
package cam

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"gorgonia.org/tensor"
)

var (
	// ErrDimensionMismatch reports disagreeing channel counts or buffer sizes.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidThreshold reports a selection threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrInvalidSize reports a non-positive map or target size.
	ErrInvalidSize = errors.New("invalid size")
)

// ComputeCAM collapses the channel axis of features with the class weight
// vector: out[h, w] = sum_c weights[c] * features[c, h, w], computed as the
// [1, C] x [C, H*W] product. The raw sum is returned; values may be negative.
func ComputeCAM(features *FeatureTensor, weights []float32) (Map, error) {
	c, h, w := features.Shape()
	if len(weights) != c {
		return Map{}, fmt.Errorf("%w: %d feature channels, %d class weights", ErrDimensionMismatch, c, len(weights))
	}

	out := NewMap(h, w)
	row := tensor.New(tensor.WithShape(1, c), tensor.WithBacking(weights))
	dst := tensor.New(tensor.WithShape(1, h*w), tensor.WithBacking(out.Data))
	// features.spatial is shared between goroutines; MatMul gets its own header.
	if _, err := row.MatMul(features.spatial.ShallowClone(), tensor.WithReuse(dst)); err != nil {
		return Map{}, fmt.Errorf("failed to compute CAM: %w", err)
	}
	return out, nil
}

// SelectClasses returns, in ascending order, the indices whose probability
// is strictly greater than threshold. An empty result is not an error.
func SelectClasses(probabilities []float32, threshold float32) ([]int, error) {
	if math32.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v not in [0, 1]", ErrInvalidThreshold, threshold)
	}

	selected := []int{}
	for i, p := range probabilities {
		if p > threshold {
			selected = append(selected, i)
		}
	}
	return selected, nil
}

// Argmax returns the index and value of the largest probability, or -1 for
// an empty vector.
func Argmax(probabilities []float32) (int, float32) {
	if len(probabilities) == 0 {
		return -1, 0
	}
	maxIdx, maxVal := 0, probabilities[0]
	for i, p := range probabilities {
		if p > maxVal {
			maxIdx, maxVal = i, p
		}
	}
	return maxIdx, maxVal
}
