// Command camtool runs one chest X-ray through the CAM model and writes a
// heatmap overlay for every finding above the threshold.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Snowy7/sanad/internal/cam"
	"github.com/Snowy7/sanad/internal/config"
	"github.com/Snowy7/sanad/internal/model"
	"github.com/Snowy7/sanad/internal/render"
)

func main() {
	config.LoadEnv(".env.local", ".env")
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	imagePath := flag.String("image", "", "chest X-ray (PNG or JPEG)")
	outDir := flag.String("out", "heatmaps", "directory for overlay PNGs")
	threshold := flag.Float64("threshold", float64(cfg.Threshold), "probability above which a class gets a heatmap")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: camtool -image <xray.png> [-out dir] [-threshold 0.5]")
		os.Exit(1)
	}

	img, err := imaging.Open(*imagePath)
	if err != nil {
		log.Fatalf("Failed to open image: %v", err)
	}

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
	cams := cam.NewReconstructor(matrix)

	ctx := context.Background()
	size := classifier.Metadata.ImageSize
	inference, err := classifier.Infer(ctx, model.Preprocess(img, size))
	if err != nil {
		log.Fatalf("Inference failed: %v", err)
	}

	selected, err := cam.SelectClasses(inference.Probabilities, float32(*threshold))
	if err != nil {
		log.Fatalf("Class selection failed: %v", err)
	}
	heatmaps, err := cams.Heatmaps(ctx, inference.Features, selected, size, size)
	if err != nil {
		log.Fatalf("CAM computation failed: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	written := make(map[int]string, len(selected))
	for i, class := range selected {
		name := strings.ReplaceAll(strings.ToLower(pathologies.Name(class)), " ", "_") + ".png"
		path := filepath.Join(*outDir, name)
		if err := imaging.Save(render.Overlay(img, heatmaps[i], cfg.HeatmapOpacity), path); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		written[class] = path
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Findings (threshold %0.02f)", *threshold))
	t.AppendHeader(table.Row{"#", "Pathology", "Probability", "Heatmap"})
	for i, p := range inference.Probabilities {
		t.AppendRow(table.Row{i, pathologies.Name(i), fmt.Sprintf("%0.04f", p), written[i]})
	}
	t.Render()
}
