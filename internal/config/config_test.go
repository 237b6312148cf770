package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, filepath.Join("models", "chest_xray_cam.onnx"), cfg.CAMModel)
	assert.Equal(t, filepath.Join("models", "classifier_weights.bin"), cfg.ClassifierWeights)
	assert.Equal(t, float32(0.5), cfg.Threshold)
	assert.Equal(t, 0.45, cfg.HeatmapOpacity)
}

func TestModelDirMovesDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"MODEL_DIR":        "/srv/xray",
		"PATHOLOGY_LABELS": "/etc/labels.txt",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/srv/xray", cfg.ModelDir)
	assert.Equal(t, filepath.Join("/srv/xray", "chest_xray_cam.onnx"), cfg.CAMModel)
	assert.Equal(t, filepath.Join("/srv/xray", "anatomy_labels.txt"), cfg.AnatomyLabels)
	assert.Equal(t, "/etc/labels.txt", cfg.PathologyLabels)
}

func TestInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"CAM_THRESHOLD": "1.2"},
		{"CAM_THRESHOLD": "-0.1"},
		{"CAM_THRESHOLD": "high"},
		{"HEATMAP_OPACITY": "2"},
	}

	for _, env := range tests {
		_, err := FromLookup(lookupFrom(env))
		assert.Error(t, err, "%v", env)
	}
}

func TestSegmentationEnabled(t *testing.T) {
	dir := t.TempDir()
	cfg, err := FromLookup(lookupFrom(map[string]string{"MODEL_DIR": dir}))
	require.NoError(t, err)
	assert.False(t, cfg.SegmentationEnabled())

	require.NoError(t, os.WriteFile(cfg.SegmentationModel, []byte("onnx"), 0o644))
	assert.True(t, cfg.SegmentationEnabled())
}

func TestLoadEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SANAD_TEST_PORT=9000\nSANAD_TEST_DIR=/data\n"), 0o644))

	t.Setenv("SANAD_TEST_PORT", "7000")
	LoadEnv(filepath.Join(dir, ".env.missing"), path)
	t.Cleanup(func() { os.Unsetenv("SANAD_TEST_DIR") })

	assert.Equal(t, "7000", os.Getenv("SANAD_TEST_PORT"))
	assert.Equal(t, "/data", os.Getenv("SANAD_TEST_DIR"))
}
