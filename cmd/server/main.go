package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Snowy7/sanad/internal/cam"
	"github.com/Snowy7/sanad/internal/config"
	"github.com/Snowy7/sanad/internal/handlers"
	"github.com/Snowy7/sanad/internal/labels"
	"github.com/Snowy7/sanad/internal/model"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func main() {
	// Get the project root directory
	execPath, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to get working directory: %v", err)
	}

	// If running from cmd/server, go up two levels
	if filepath.Base(execPath) == "server" {
		execPath = filepath.Join(execPath, "../..")
		if err := os.Chdir(execPath); err != nil {
			log.Fatalf("Failed to change to project root: %v", err)
		}
	}

	config.LoadEnv(".env.local", ".env")
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Loading model from: %s", cfg.CAMModel)

	classifier, err := model.NewClassifier(model.ClassifierConfig{
		ModelPath:    cfg.CAMModel,
		MetadataPath: cfg.CAMMetadata,
		LibraryPath:  cfg.LibraryPath,
	})
	if err != nil {
		log.Fatalf("Failed to initialize classifier: %v", err)
	}
	defer classifier.Close()

	pathologies, matrix, err := model.LoadClassifierArtifacts(classifier.Metadata, cfg.PathologyLabels, cfg.ClassifierWeights)
	if err != nil {
		log.Fatalf("Failed to load classifier artifacts: %v", err)
	}

	handler := handlers.NewHandler(classifier, cam.NewReconstructor(matrix), pathologies, cfg.Threshold, cfg.HeatmapOpacity)

	if cfg.SegmentationEnabled() {
		anatomy, err := labels.LoadOr(cfg.AnatomyLabels, labels.Anatomy)
		if err != nil {
			log.Fatalf("Failed to load anatomy labels: %v", err)
		}
		segmenter, err := model.NewSegmenter(model.SegmenterConfig{
			ModelPath:   cfg.SegmentationModel,
			LibraryPath: cfg.LibraryPath,
			Regions:     len(anatomy),
		})
		if err != nil {
			log.Fatalf("Failed to initialize segmenter: %v", err)
		}
		defer segmenter.Close()
		handler.WithSegmenter(segmenter, anatomy)
	}

	http.HandleFunc("/health", enableCORS(handler.Health))
	http.HandleFunc("/predict", enableCORS(handler.Predict))
	http.HandleFunc("/predict/image", enableCORS(handler.PredictFromImage))
	http.HandleFunc("/cam/image", enableCORS(handler.CAMOverlay))
	http.HandleFunc("/segment/image", enableCORS(handler.Segment))

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Server Config")
	t.AppendRows([]table.Row{
		{"PORT", cfg.Port},
		{"CAM_MODEL", cfg.CAMModel},
		{"CLASSIFIER_WEIGHTS", fmt.Sprintf("%s [%d x %d]", cfg.ClassifierWeights, matrix.Rows(), matrix.Cols())},
		{"CAM_THRESHOLD", fmt.Sprintf("%0.02f", cfg.Threshold)},
		{"SEGMENTATION", fmt.Sprintf("%v", cfg.SegmentationEnabled())},
	})
	t.Render()

	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Classes: %v", pathologies)
	log.Println("Endpoints:")
	log.Println("  GET  /health         - Health check")
	log.Println("  POST /predict        - Raw array prediction")
	log.Println("  POST /predict/image  - Predict from image upload (?heatmaps=true&threshold=0.5)")
	log.Println("  POST /cam/image      - Heatmap overlay PNG (?class=Effusion)")
	log.Println("  POST /segment/image  - Anatomy region coverage")

	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
