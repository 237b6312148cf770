package cam

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWeights [][]float32

func (s stubWeights) Row(class int) ([]float32, error) {
	if class < 0 || class >= len(s) {
		return nil, fmt.Errorf("class %d out of range", class)
	}
	return s[class], nil
}

func (s stubWeights) Rows() int { return len(s) }

func TestReconstructorForClasses(t *testing.T) {
	f, err := NewFeatureTensor(2, 1, 2, []float32{1, 2, 10, 20})
	require.NoError(t, err)

	r := NewReconstructor(stubWeights{
		{1, 0},
		{0, 1},
		{1, 1},
	})
	assert.Equal(t, 3, r.Classes())

	maps, err := r.ForClasses(context.Background(), f, []int{2, 0, 1})
	require.NoError(t, err)
	require.Len(t, maps, 3)
	assert.Equal(t, []float32{11, 22}, maps[0].Data)
	assert.Equal(t, []float32{1, 2}, maps[1].Data)
	assert.Equal(t, []float32{10, 20}, maps[2].Data)
}

func TestReconstructorUnknownClass(t *testing.T) {
	f, err := NewFeatureTensor(2, 1, 1, []float32{1, 1})
	require.NoError(t, err)

	r := NewReconstructor(stubWeights{{1, 1}})
	_, err = r.ForClasses(context.Background(), f, []int{0, 4})
	assert.Error(t, err)
}

func TestReconstructorChannelMismatch(t *testing.T) {
	f, err := NewFeatureTensor(3, 1, 1, []float32{1, 1, 1})
	require.NoError(t, err)

	r := NewReconstructor(stubWeights{{1, 1}})
	_, err = r.ForClass(f, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestReconstructorHeatmaps(t *testing.T) {
	f, err := NewFeatureTensor(1, 2, 2, []float32{0, 1, 2, 3})
	require.NoError(t, err)

	r := NewReconstructor(stubWeights{{1}, {-1}})
	maps, err := r.Heatmaps(context.Background(), f, []int{0, 1}, 4, 4)
	require.NoError(t, err)
	require.Len(t, maps, 2)

	for _, m := range maps {
		assert.Equal(t, 4, m.H)
		assert.Equal(t, 4, m.W)
	}
	assert.Equal(t, float32(0), maps[0].At(0, 0))
	assert.Equal(t, float32(1), maps[0].At(3, 3))
	assert.Equal(t, float32(1), maps[1].At(0, 0))
	assert.Equal(t, float32(0), maps[1].At(3, 3))
}

func TestReconstructorCancelled(t *testing.T) {
	f, err := NewFeatureTensor(1, 1, 1, []float32{1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReconstructor(stubWeights{{1}})
	_, err = r.ForClasses(ctx, f, []int{0})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconstructorNoClasses(t *testing.T) {
	f, err := NewFeatureTensor(1, 1, 1, []float32{1})
	require.NoError(t, err)

	maps, err := NewReconstructor(stubWeights{{1}}).ForClasses(context.Background(), f, nil)
	require.NoError(t, err)
	assert.Empty(t, maps)
}
