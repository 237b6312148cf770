package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/Snowy7/sanad/internal/cam"
	"github.com/Snowy7/sanad/internal/labels"
	"github.com/Snowy7/sanad/internal/model"
	"github.com/Snowy7/sanad/internal/render"
)

const maxUploadSize = 10 << 20

type Handler struct {
	classifier  model.Inferencer
	cams        *cam.Reconstructor
	pathologies labels.List
	threshold   float32
	opacity     float64

	segmenter model.SegmentRunner
	anatomy   labels.List
}

func NewHandler(classifier model.Inferencer, cams *cam.Reconstructor, pathologies labels.List, threshold float32, opacity float64) *Handler {
	return &Handler{
		classifier:  classifier,
		cams:        cams,
		pathologies: pathologies,
		threshold:   threshold,
		opacity:     opacity,
	}
}

// WithSegmenter enables the /segment/image route.
func (h *Handler) WithSegmenter(segmenter model.SegmentRunner, anatomy labels.List) *Handler {
	h.segmenter = segmenter
	h.anatomy = anatomy
	return h
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	expectedSize := h.classifier.Meta().InputSize()
	if len(req.Image) != expectedSize {
		http.Error(w, fmt.Sprintf("Expected %d values, got %d", expectedSize, len(req.Image)),
			http.StatusBadRequest)
		return
	}

	threshold := h.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	h.respondPrediction(w, r, req.Image, threshold, req.Heatmaps)
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	threshold, err := h.thresholdParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	img, ok := readUpload(w, r)
	if !ok {
		return
	}

	pixels := model.Preprocess(img, h.classifier.Meta().ImageSize)
	h.respondPrediction(w, r, pixels, threshold, r.URL.Query().Get("heatmaps") == "true")
}

func (h *Handler) respondPrediction(w http.ResponseWriter, r *http.Request, pixels []float32, threshold float32, withHeatmaps bool) {
	inference, err := h.classifier.Infer(r.Context(), pixels)
	if err != nil {
		log.Printf("Prediction error: %v", err)
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	result, err := h.analyze(r, inference, threshold, withHeatmaps)
	if err != nil {
		if errors.Is(err, cam.ErrInvalidThreshold) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("CAM error: %v", err)
		http.Error(w, "Heatmap computation failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

func (h *Handler) analyze(r *http.Request, inference *model.Inference, threshold float32, withHeatmaps bool) (*model.PredictionResponse, error) {
	probs := inference.Probabilities

	selected, err := cam.SelectClasses(probs, threshold)
	if err != nil {
		return nil, err
	}

	predictions := make(map[string]float32, len(probs))
	for i, p := range probs {
		predictions[h.pathologies.Name(i)] = p
	}
	topIdx, topVal := cam.Argmax(probs)

	findings := make([]model.Finding, len(selected))
	for i, class := range selected {
		findings[i] = model.Finding{
			Index:       class,
			Label:       h.pathologies.Name(class),
			Probability: probs[class],
		}
	}

	if withHeatmaps && len(selected) > 0 {
		size := h.classifier.Meta().ImageSize
		maps, err := h.cams.Heatmaps(r.Context(), inference.Features, selected, size, size)
		if err != nil {
			return nil, err
		}
		for i := range findings {
			findings[i].Heatmap = maps[i].Rows()
		}
	}

	log.Printf("Prediction: top=%s (%.3f), %d findings above %.2f",
		h.pathologies.Name(topIdx), topVal, len(findings), threshold)

	return &model.PredictionResponse{
		Class:       h.pathologies.Name(topIdx),
		Confidence:  topVal,
		Predictions: predictions,
		Threshold:   threshold,
		Findings:    findings,
	}, nil
}

// CAMOverlay renders the heatmap of one class over the uploaded X-ray.
func (h *Handler) CAMOverlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	class, err := h.classParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	img, ok := readUpload(w, r)
	if !ok {
		return
	}

	size := h.classifier.Meta().ImageSize
	inference, err := h.classifier.Infer(r.Context(), model.Preprocess(img, size))
	if err != nil {
		log.Printf("Prediction error: %v", err)
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	heat, err := h.cams.Heatmap(inference.Features, class, size, size)
	if err != nil {
		log.Printf("CAM error: %v", err)
		http.Error(w, "Heatmap computation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := render.EncodePNG(w, render.Overlay(img, heat, h.opacity)); err != nil {
		log.Printf("PNG encode error: %v", err)
	}
}

func (h *Handler) Segment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.segmenter == nil {
		http.Error(w, "Segmentation model not loaded", http.StatusNotFound)
		return
	}

	img, ok := readUpload(w, r)
	if !ok {
		return
	}

	regions, err := h.segmenter.Segment(r.Context(), model.Preprocess(img, h.segmenter.ImageSize()))
	if err != nil {
		log.Printf("Segmentation error: %v", err)
		http.Error(w, "Segmentation failed", http.StatusInternalServerError)
		return
	}
	for i := range regions {
		regions[i].Label = h.anatomy.Name(regions[i].Index)
	}

	writeJSON(w, model.SegmentationResponse{Regions: regions})
}

func (h *Handler) thresholdParam(r *http.Request) (float32, error) {
	raw := r.URL.Query().Get("threshold")
	if raw == "" {
		return h.threshold, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q", raw)
	}
	return float32(v), nil
}

// classParam accepts either a class index or a label name.
func (h *Handler) classParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("class")
	if raw == "" {
		return 0, fmt.Errorf("missing class parameter")
	}

	class, err := strconv.Atoi(raw)
	if err != nil {
		idx, ok := h.pathologies.Index(raw)
		if !ok {
			return 0, fmt.Errorf("unknown class %q", raw)
		}
		class = idx
	}
	if class < 0 || class >= h.cams.Classes() {
		return 0, fmt.Errorf("class %d out of range [0, %d)", class, h.cams.Classes())
	}
	return class, nil
}

// readUpload decodes the "image" multipart field, writing the error response
// itself when it fails.
func readUpload(w http.ResponseWriter, r *http.Request) (image.Image, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	log.Printf("Received file: %s, size: %d bytes", header.Filename, header.Size)

	img, format, err := image.Decode(file)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG", http.StatusBadRequest)
		return nil, false
	}

	log.Printf("Image format: %s, dimensions: %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())
	return img, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Response encode error: %v", err)
	}
}
