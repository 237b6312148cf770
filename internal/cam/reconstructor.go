package cam

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// WeightSource yields per-class weight vectors. Implementations must be safe
// for concurrent reads.
type WeightSource interface {
	Row(class int) ([]float32, error)
	Rows() int
}

// Reconstructor computes CAMs against a shared, read-only weight matrix.
type Reconstructor struct {
	weights WeightSource
}

func NewReconstructor(weights WeightSource) *Reconstructor {
	return &Reconstructor{weights: weights}
}

// Classes is the number of classes the weight matrix covers.
func (r *Reconstructor) Classes() int {
	return r.weights.Rows()
}

// ForClass returns the raw saliency map for one class.
func (r *Reconstructor) ForClass(features *FeatureTensor, class int) (Map, error) {
	row, err := r.weights.Row(class)
	if err != nil {
		return Map{}, err
	}
	m, err := ComputeCAM(features, row)
	if err != nil {
		return Map{}, fmt.Errorf("class %d: %w", class, err)
	}
	return m, nil
}

// Heatmap computes, upsamples and normalises the map for one class.
func (r *Reconstructor) Heatmap(features *FeatureTensor, class, height, width int) (Map, error) {
	m, err := r.ForClass(features, class)
	if err != nil {
		return Map{}, err
	}
	up, err := Upsample(m, height, width)
	if err != nil {
		return Map{}, err
	}
	return NormalizeForDisplay(up), nil
}

// ForClasses computes raw maps for several classes in parallel. Results are
// in the order of classes.
func (r *Reconstructor) ForClasses(ctx context.Context, features *FeatureTensor, classes []int) ([]Map, error) {
	return r.fanOut(ctx, classes, func(class int) (Map, error) {
		return r.ForClass(features, class)
	})
}

// Heatmaps is the parallel form of Heatmap.
func (r *Reconstructor) Heatmaps(ctx context.Context, features *FeatureTensor, classes []int, height, width int) ([]Map, error) {
	return r.fanOut(ctx, classes, func(class int) (Map, error) {
		return r.Heatmap(features, class, height, width)
	})
}

func (r *Reconstructor) fanOut(ctx context.Context, classes []int, fn func(int) (Map, error)) ([]Map, error) {
	results := make([]Map, len(classes))
	g, ctx := errgroup.WithContext(ctx)
	for i, class := range classes {
		i, class := i, class
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := fn(class)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
