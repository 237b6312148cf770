package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Snowy7/sanad/internal/cam"
)

// Inference is one forward pass of the CAM graph.
type Inference struct {
	Probabilities []float32
	Features      *cam.FeatureTensor
}

// Inferencer is what the HTTP and CLI layers need from the classifier.
type Inferencer interface {
	Infer(ctx context.Context, pixels []float32) (*Inference, error)
	Meta() Metadata
}

type ClassifierConfig struct {
	ModelPath    string
	MetadataPath string
	LibraryPath  string
}

// Classifier runs the exported DenseNet with its "probs" and "features"
// outputs. Tensors are bound to the session once, so runs are serialised.
type Classifier struct {
	mu             sync.Mutex
	session        *ort.AdvancedSession
	Metadata       Metadata
	inputTensor    *ort.Tensor[float32]
	probsTensor    *ort.Tensor[float32]
	featuresTensor *ort.Tensor[float32]
	closed         bool
}

func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	metadata, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}

	if err := acquireEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	c := &Classifier{Metadata: metadata}
	if err := c.bind(cfg.ModelPath); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Classifier) bind(modelPath string) error {
	var err error
	c.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(c.Metadata.InputShape...))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	c.probsTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(c.Metadata.ProbsShape...))
	if err != nil {
		return fmt.Errorf("failed to create probs tensor: %w", err)
	}
	c.featuresTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(c.Metadata.FeaturesShape...))
	if err != nil {
		return fmt.Errorf("failed to create features tensor: %w", err)
	}

	c.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"probs", "features"},
		[]ort.ArbitraryTensor{c.inputTensor},
		[]ort.ArbitraryTensor{c.probsTensor, c.featuresTensor},
		nil)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return nil
}

func (c *Classifier) Meta() Metadata {
	return c.Metadata
}

// Infer runs one preprocessed image through the graph. pixels must hold
// Metadata.InputSize() values in [-1, 1]; the graph rescales internally.
func (c *Classifier) Infer(ctx context.Context, pixels []float32) (*Inference, error) {
	if want := c.Metadata.InputSize(); len(pixels) != want {
		return nil, fmt.Errorf("%w: expected %d input values, got %d", cam.ErrDimensionMismatch, want, len(pixels))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("classifier is closed")
	}

	copy(c.inputTensor.GetData(), pixels)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	probs := append([]float32(nil), c.probsTensor.GetData()...)
	features := append([]float32(nil), c.featuresTensor.GetData()...)

	shape := c.Metadata.FeaturesShape
	ft, err := cam.NewFeatureTensor(int(shape[1]), int(shape[2]), int(shape[3]), features)
	if err != nil {
		return nil, fmt.Errorf("unexpected features output: %w", err)
	}

	return &Inference{Probabilities: probs, Features: ft}, nil
}

// Close releases the session. Calling it again is a no-op.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.probsTensor != nil {
		c.probsTensor.Destroy()
	}
	if c.featuresTensor != nil {
		c.featuresTensor.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
	releaseEnvironment()
}
