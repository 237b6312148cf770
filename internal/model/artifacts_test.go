package model

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snowy7/sanad/internal/cam"
)

func smallMetadata() Metadata {
	return Metadata{
		InputShape:    []int64{1, 1, 4, 4},
		ProbsShape:    []int64{1, 2},
		FeaturesShape: []int64{1, 3, 2, 2},
		ImageSize:     4,
	}
}

func writeArtifacts(t *testing.T, labelText string, values int) (string, string) {
	t.Helper()
	dir := t.TempDir()

	labelsPath := filepath.Join(dir, "pathology_labels.txt")
	require.NoError(t, os.WriteFile(labelsPath, []byte(labelText), 0o644))

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, make([]float32, values)))
	weightsPath := filepath.Join(dir, "classifier_weights.bin")
	require.NoError(t, os.WriteFile(weightsPath, buf.Bytes(), 0o644))

	return labelsPath, weightsPath
}

func TestLoadClassifierArtifacts(t *testing.T) {
	labelsPath, weightsPath := writeArtifacts(t, "Effusion\nMass\n", 2*3)

	pathologies, matrix, err := LoadClassifierArtifacts(smallMetadata(), labelsPath, weightsPath)
	require.NoError(t, err)
	assert.Equal(t, "Mass", pathologies.Name(1))
	assert.Equal(t, 2, matrix.Rows())
	assert.Equal(t, 3, matrix.Cols())
}

func TestLoadClassifierArtifactsLabelCount(t *testing.T) {
	labelsPath, weightsPath := writeArtifacts(t, "Effusion\nMass\nNodule\n", 3*3)

	_, _, err := LoadClassifierArtifacts(smallMetadata(), labelsPath, weightsPath)
	assert.ErrorContains(t, err, "3 entries")
}

func TestLoadClassifierArtifactsChannelCount(t *testing.T) {
	// 2 x 4 weights would be accepted if columns were inferred from size
	labelsPath, weightsPath := writeArtifacts(t, "Effusion\nMass\n", 2*4)

	_, _, err := LoadClassifierArtifacts(smallMetadata(), labelsPath, weightsPath)
	assert.ErrorIs(t, err, cam.ErrDimensionMismatch)
}
