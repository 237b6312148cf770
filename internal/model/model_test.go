package model

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snowy7/sanad/internal/cam"
)

func TestLoadMetadataDefaults(t *testing.T) {
	meta, err := LoadMetadata("")
	require.NoError(t, err)
	assert.Equal(t, 224*224, meta.InputSize())
	assert.Equal(t, 18, meta.Classes())
	assert.Equal(t, 1024, meta.FeatureChannels())

	meta, err = LoadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 224, meta.ImageSize)
}

func TestLoadMetadataOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chest_xray_cam.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"input_shape": [1, 1, 112, 112],
		"features_shape": [1, 512, 4, 4],
		"image_size": 112
	}`), 0o644))

	meta, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 112*112, meta.InputSize())
	assert.Equal(t, 512, meta.FeatureChannels())
	assert.Equal(t, 18, meta.Classes(), "unset fields keep defaults")
}

func TestLoadMetadataRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"input_shape": `},
		{"short input", `{"input_shape": [224, 224]}`},
		{"batched", `{"probs_shape": [4, 18]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "meta.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadMetadata(path)
			assert.Error(t, err)
		})
	}
}

func TestPreprocessRange(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			if x >= 20 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	pixels := Preprocess(img, 16)
	require.Len(t, pixels, 16*16)

	assert.InDelta(t, -1, pixels[0], 1e-3, "black corner")
	assert.InDelta(t, 1, pixels[15], 1e-3, "white corner")
	for _, v := range pixels {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestPreprocessColorImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 30, 30))
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	for _, v := range Preprocess(img, 8) {
		assert.InDelta(t, 1, v, 1e-3)
	}
}

func TestSummarizeRegions(t *testing.T) {
	logits := []float32{
		10, 10, -10, -10, // region 0: half covered
		-10, -10, -10, -10, // region 1: empty
	}
	regions := summarizeRegions(logits, 2, 4)
	require.Len(t, regions, 2)

	assert.Equal(t, 0, regions[0].Index)
	assert.InDelta(t, 0.5, regions[0].Coverage, 1e-6)
	assert.InDelta(t, 0.5, regions[0].MeanProbability, 1e-3)

	assert.Equal(t, 1, regions[1].Index)
	assert.Equal(t, float32(0), regions[1].Coverage)
	assert.InDelta(t, 0, regions[1].MeanProbability, 1e-3)
}

func TestSegmentFeedsGraphRange(t *testing.T) {
	s := &Segmenter{regions: 1, size: 2}
	var fed []float32
	s.run = func(input []float32) ([]float32, error) {
		fed = input
		return []float32{10, 10, -10, -10}, nil
	}

	pixels := []float32{-1, 0, 0.5, 1}
	regions, err := s.Segment(context.Background(), pixels)
	require.NoError(t, err)

	assert.Equal(t, []float32{-1024, 0, 512, 1024}, fed)
	assert.Equal(t, []float32{-1, 0, 0.5, 1}, pixels, "caller's buffer is untouched")
	require.Len(t, regions, 1)
	assert.InDelta(t, 0.5, regions[0].Coverage, 1e-6)
}

func TestSegmentFromPreprocessedImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	s := &Segmenter{regions: 1, size: 4}
	var fed []float32
	s.run = func(input []float32) ([]float32, error) {
		fed = input
		return make([]float32, 16), nil
	}

	_, err := s.Segment(context.Background(), Preprocess(img, 4))
	require.NoError(t, err)
	require.Len(t, fed, 16)
	for _, v := range fed {
		assert.InDelta(t, 1024, v, 10)
	}
}

func TestSegmentChecksShapes(t *testing.T) {
	s := &Segmenter{regions: 2, size: 2}
	s.run = func(input []float32) ([]float32, error) {
		return make([]float32, 4), nil
	}

	_, err := s.Segment(context.Background(), make([]float32, 3))
	assert.ErrorIs(t, err, cam.ErrDimensionMismatch)

	_, err = s.Segment(context.Background(), make([]float32, 4))
	assert.ErrorIs(t, err, cam.ErrDimensionMismatch, "one region short")
}

func TestCloseReleasesEnvironmentOnce(t *testing.T) {
	envMu.Lock()
	envRefs = 3
	envMu.Unlock()
	t.Cleanup(func() {
		envMu.Lock()
		envRefs = 0
		envMu.Unlock()
	})

	c := &Classifier{}
	c.Close()
	c.Close()

	s := &Segmenter{}
	s.Close()
	s.Close()

	envMu.Lock()
	assert.Equal(t, 1, envRefs)
	envMu.Unlock()

	_, err := c.Infer(context.Background(), nil)
	assert.Error(t, err)
	_, err = s.Segment(context.Background(), nil)
	assert.Error(t, err)
}
