package model

import (
	"fmt"

	"github.com/Snowy7/sanad/internal/labels"
	"github.com/Snowy7/sanad/internal/weights"
)

// LoadClassifierArtifacts reads the pathology labels and classifier weights
// that accompany the CAM graph and checks them against its metadata: one
// label per probability, one weight column per feature channel.
func LoadClassifierArtifacts(meta Metadata, labelsPath, weightsPath string) (labels.List, *weights.Matrix, error) {
	pathologies, err := labels.LoadOr(labelsPath, labels.Pathologies)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pathology labels: %w", err)
	}
	if len(pathologies) != meta.Classes() {
		return nil, nil, fmt.Errorf("label list has %d entries, model outputs %d classes", len(pathologies), meta.Classes())
	}

	matrix, err := weights.Load(weightsPath, len(pathologies), meta.FeatureChannels())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load classifier weights: %w", err)
	}
	return pathologies, matrix, nil
}
