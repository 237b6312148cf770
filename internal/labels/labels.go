// Package labels reads the class and region name lists shipped beside the
// exported models, one name per line in output order.
package labels

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// List holds class names in the order of the model's output rows.
type List []string

// Pathologies is the output order of the chest X-ray classifier.
var Pathologies = List{
	"Atelectasis",
	"Consolidation",
	"Infiltration",
	"Pneumothorax",
	"Edema",
	"Emphysema",
	"Fibrosis",
	"Effusion",
	"Pneumonia",
	"Pleural_Thickening",
	"Cardiomegaly",
	"Nodule",
	"Mass",
	"Hernia",
	"Lung Lesion",
	"Fracture",
	"Lung Opacity",
	"Enlarged Cardiomediastinum",
}

// Anatomy is the channel order of the segmentation model.
var Anatomy = List{
	"Left Clavicle",
	"Right Clavicle",
	"Left Scapula",
	"Right Scapula",
	"Left Lung",
	"Right Lung",
	"Left Hilus Pulmonis",
	"Right Hilus Pulmonis",
	"Heart",
	"Aorta",
	"Facies Diaphragmatica",
	"Mediastinum",
	"Weasand",
	"Spine",
}

// Parse reads one label per line. Trailing blank lines are ignored; a blank
// line before or between labels would shift every following index, so it is
// rejected.
func Parse(r io.Reader) (List, error) {
	var (
		list    List
		pending int
		line    int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line++
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			pending++
			continue
		}
		if pending > 0 {
			return nil, fmt.Errorf("blank label before line %d", line)
		}
		list = append(list, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("label list is empty")
	}
	return list, nil
}

// Load reads a label file from disk.
func Load(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	list, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

// LoadOr reads path, falling back to def when the file does not exist.
func LoadOr(path string, def List) (List, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return def, nil
	}
	return Load(path)
}

// Name returns the label for index i, or a generated placeholder.
func (l List) Name(i int) string {
	if i >= 0 && i < len(l) {
		return l[i]
	}
	return fmt.Sprintf("class_%d", i)
}

// Index resolves a label to its position, case-insensitively.
func (l List) Index(name string) (int, bool) {
	for i, n := range l {
		if strings.EqualFold(n, name) {
			return i, true
		}
	}
	return -1, false
}
