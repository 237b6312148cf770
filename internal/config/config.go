// Package config reads service settings from the environment, optionally
// seeded from .env files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	ModelDir          string
	CAMModel          string
	CAMMetadata       string
	ClassifierWeights string
	PathologyLabels   string
	SegmentationModel string
	AnatomyLabels     string
	LibraryPath       string

	Threshold      float32
	HeatmapOpacity float64
}

// LoadEnv applies every existing file in order. Variables already set are
// not overridden, so earlier files win.
func LoadEnv(filenames ...string) {
	for _, filename := range filenames {
		if s, err := os.Stat(filename); err == nil && !s.IsDir() {
			godotenv.Load(filename)
		}
	}
}

// FromEnv builds a Config from the process environment.
func FromEnv() (*Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}

	dir := get("MODEL_DIR", "models")
	cfg := &Config{
		Port:              get("PORT", "8080"),
		ModelDir:          dir,
		CAMModel:          get("CAM_MODEL", filepath.Join(dir, "chest_xray_cam.onnx")),
		CAMMetadata:       get("CAM_METADATA", filepath.Join(dir, "chest_xray_cam.json")),
		ClassifierWeights: get("CLASSIFIER_WEIGHTS", filepath.Join(dir, "classifier_weights.bin")),
		PathologyLabels:   get("PATHOLOGY_LABELS", filepath.Join(dir, "pathology_labels.txt")),
		SegmentationModel: get("SEGMENTATION_MODEL", filepath.Join(dir, "chest_segmentation.onnx")),
		AnatomyLabels:     get("ANATOMY_LABELS", filepath.Join(dir, "anatomy_labels.txt")),
		LibraryPath:       get("ORT_LIBRARY_PATH", ""),
	}

	threshold, err := parseUnit(get("CAM_THRESHOLD", "0.5"))
	if err != nil {
		return nil, fmt.Errorf("error parsing env.CAM_THRESHOLD: %w", err)
	}
	cfg.Threshold = float32(threshold)

	opacity, err := parseUnit(get("HEATMAP_OPACITY", "0.45"))
	if err != nil {
		return nil, fmt.Errorf("error parsing env.HEATMAP_OPACITY: %w", err)
	}
	cfg.HeatmapOpacity = opacity

	return cfg, nil
}

func parseUnit(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("%v not in [0, 1]", v)
	}
	return v, nil
}

// SegmentationEnabled reports whether the segmentation model file exists.
func (c *Config) SegmentationEnabled() bool {
	if c.SegmentationModel == "" {
		return false
	}
	s, err := os.Stat(c.SegmentationModel)
	return err == nil && !s.IsDir()
}
