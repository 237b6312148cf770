package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata describes the exported CAM graph. Zero fields take the values of
// the DenseNet export: [1,1,224,224] in, [1,18] probabilities and
// [1,1024,7,7] features out.
type Metadata struct {
	InputShape    []int64 `json:"input_shape"`
	ProbsShape    []int64 `json:"probs_shape"`
	FeaturesShape []int64 `json:"features_shape"`
	ImageSize     int     `json:"image_size"`
}

func defaultMetadata() Metadata {
	return Metadata{
		InputShape:    []int64{1, 1, 224, 224},
		ProbsShape:    []int64{1, 18},
		FeaturesShape: []int64{1, 1024, 7, 7},
		ImageSize:     224,
	}
}

// LoadMetadata reads a metadata file. An empty path or a missing file yields
// the defaults.
func LoadMetadata(path string) (Metadata, error) {
	meta := defaultMetadata()
	if path == "" {
		return meta, nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return meta, nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var parsed Metadata
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(parsed.InputShape) > 0 {
		meta.InputShape = parsed.InputShape
	}
	if len(parsed.ProbsShape) > 0 {
		meta.ProbsShape = parsed.ProbsShape
	}
	if len(parsed.FeaturesShape) > 0 {
		meta.FeaturesShape = parsed.FeaturesShape
	}
	if parsed.ImageSize > 0 {
		meta.ImageSize = parsed.ImageSize
	}
	return meta, meta.validate()
}

func (m Metadata) validate() error {
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input_shape must be [N C H W], got %v", m.InputShape)
	}
	if len(m.ProbsShape) != 2 {
		return fmt.Errorf("probs_shape must be [N classes], got %v", m.ProbsShape)
	}
	if len(m.FeaturesShape) != 4 {
		return fmt.Errorf("features_shape must be [N C H W], got %v", m.FeaturesShape)
	}
	for _, shape := range [][]int64{m.InputShape, m.ProbsShape, m.FeaturesShape} {
		if shape[0] != 1 {
			return fmt.Errorf("batch size must be 1, got shape %v", shape)
		}
	}
	return nil
}

// InputSize is the number of float32 values one inference consumes.
func (m Metadata) InputSize() int {
	return volume(m.InputShape)
}

// Classes is the length of the probability vector.
func (m Metadata) Classes() int {
	return int(m.ProbsShape[len(m.ProbsShape)-1])
}

// FeatureChannels is C of the [1, C, H, W] feature output.
func (m Metadata) FeatureChannels() int {
	return int(m.FeaturesShape[1])
}

func volume(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range shape {
		n *= int(dim)
	}
	return n
}

type PredictionRequest struct {
	Image     []float32 `json:"image"`
	Threshold *float32  `json:"threshold,omitempty"`
	Heatmaps  bool      `json:"heatmaps,omitempty"`
}

// Finding is a class whose probability crossed the selection threshold.
type Finding struct {
	Index       int         `json:"index"`
	Label       string      `json:"label"`
	Probability float32     `json:"probability"`
	Heatmap     [][]float32 `json:"heatmap,omitempty"`
}

type PredictionResponse struct {
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
	Threshold   float32            `json:"threshold"`
	Findings    []Finding          `json:"findings"`
}

// Region summarises one anatomy channel of the segmentation output.
type Region struct {
	Index           int     `json:"index"`
	Label           string  `json:"label"`
	Coverage        float32 `json:"coverage"`
	MeanProbability float32 `json:"mean_probability"`
}

type SegmentationResponse struct {
	Regions []Region `json:"regions"`
}
