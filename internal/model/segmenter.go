package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/Snowy7/sanad/internal/cam"
)

const (
	segmentationSize    = 512
	segmentationRegions = 14
	// coverageCutoff is the probability above which a pixel counts as part
	// of a region.
	coverageCutoff = 0.5
	// segmentationInputScale lifts Preprocess output from [-1, 1] to the
	// [-1024, 1024] range the PSPNet graph normalises from. Unlike the CAM
	// graph, the segmentation export has no rescaling wrapper.
	segmentationInputScale = 1024
)

// SegmentRunner is the anatomy segmentation boundary.
type SegmentRunner interface {
	Segment(ctx context.Context, pixels []float32) ([]Region, error)
	ImageSize() int
}

type SegmenterConfig struct {
	ModelPath   string
	LibraryPath string
	Regions     int
	ImageSize   int
}

// Segmenter runs the PSPNet anatomy model: [1,1,S,S] in, per-region logits
// [1,R,S,S] out.
type Segmenter struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	regions      int
	size         int
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	closed       bool

	// run feeds one scaled input through the graph and returns the logits.
	run func(input []float32) ([]float32, error)
}

func NewSegmenter(cfg SegmenterConfig) (*Segmenter, error) {
	if cfg.Regions <= 0 {
		cfg.Regions = segmentationRegions
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = segmentationSize
	}

	if err := acquireEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	s := &Segmenter{regions: cfg.Regions, size: cfg.ImageSize}
	if err := s.bind(cfg.ModelPath); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Segmenter) bind(modelPath string) error {
	size := int64(s.size)

	var err error
	s.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, size, size))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	s.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(s.regions), size, size))
	if err != nil {
		return fmt.Errorf("failed to create segmentation tensor: %w", err)
	}

	s.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"segmentation"},
		[]ort.ArbitraryTensor{s.inputTensor}, []ort.ArbitraryTensor{s.outputTensor},
		nil)
	if err != nil {
		return fmt.Errorf("failed to create segmentation session: %w", err)
	}

	s.run = func(input []float32) ([]float32, error) {
		copy(s.inputTensor.GetData(), input)
		if err := s.session.Run(); err != nil {
			return nil, err
		}
		return s.outputTensor.GetData(), nil
	}
	return nil
}

func (s *Segmenter) ImageSize() int {
	return s.size
}

// Segment takes Preprocess output in [-1, 1] and rescales it for the graph.
func (s *Segmenter) Segment(ctx context.Context, pixels []float32) ([]Region, error) {
	if want := s.size * s.size; len(pixels) != want {
		return nil, fmt.Errorf("%w: expected %d input values, got %d", cam.ErrDimensionMismatch, want, len(pixels))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("segmenter is closed")
	}

	logits, err := s.run(scaleInput(pixels, segmentationInputScale))
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}
	if want := s.regions * s.size * s.size; len(logits) != want {
		return nil, fmt.Errorf("%w: expected %d segmentation values, got %d", cam.ErrDimensionMismatch, want, len(logits))
	}
	return summarizeRegions(logits, s.regions, s.size*s.size), nil
}

func scaleInput(pixels []float32, scale float32) []float32 {
	scaled := make([]float32, len(pixels))
	for i, v := range pixels {
		scaled[i] = v * scale
	}
	return scaled
}

// summarizeRegions turns per-region logit planes into coverage and mean
// probability. Labels are left to the caller.
func summarizeRegions(logits []float32, regions, plane int) []Region {
	out := make([]Region, regions)
	for r := 0; r < regions; r++ {
		var sum float32
		covered := 0
		for _, v := range logits[r*plane : (r+1)*plane] {
			p := sigmoid(v)
			sum += p
			if p > coverageCutoff {
				covered++
			}
		}
		out[r] = Region{
			Index:           r,
			Coverage:        float32(covered) / float32(plane),
			MeanProbability: sum / float32(plane),
		}
	}
	return out
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// Close releases the session. Calling it again is a no-op.
func (s *Segmenter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	releaseEnvironment()
}
