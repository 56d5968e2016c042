package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	dentaltriage "github.com/bitanath/dental-triage"
	"github.com/bitanath/dental-triage/internal/config"
	"github.com/bitanath/dental-triage/pkg/dataset"
	"github.com/bitanath/dental-triage/pkg/ollama"
	"github.com/bitanath/dental-triage/pkg/processing"
	"github.com/bitanath/dental-triage/pkg/session"
	"github.com/bitanath/dental-triage/pkg/tokens"
	"github.com/bitanath/dental-triage/pkg/types"
)

var log = logrus.New()

func main() {
	// .env is optional; real environment still wins.
	_ = godotenv.Load()

	var (
		mode        string
		in          string
		annotations string
		outDir      string
		configPath  string
		serverURL   string
		click       string
		diagnose    bool
		cropStyle   string
		seed        int64
		verbose     bool
	)

	flag.StringVar(&mode, "mode", "triage", "mode: triage | convert-bbox | convert-problem | convert-crops | convert-findings")
	flag.StringVar(&in, "in", "", "input X-ray path or URL (triage mode)")
	flag.StringVar(&annotations, "annotations", "", "annotation JSON path (convert modes)")
	flag.StringVar(&outDir, "out", "out", "output directory")
	flag.StringVar(&configPath, "config", "", "config JSON path (defaults built in)")
	flag.StringVar(&serverURL, "url", "", "model server URL (overrides config)")
	flag.StringVar(&click, "click", "", "click point \"x,y\" to select a tooth after detection")
	flag.BoolVar(&diagnose, "diagnose", false, "diagnose the selected tooth")
	flag.StringVar(&cropStyle, "crop-style", "treatment", "convert-crops style: treatment | diagnosis")
	flag.Int64Var(&seed, "seed", 42, "template seed for convert-findings")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Parse()

	if verbose {
		log.SetLevel(logrus.DebugLevel)
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if serverURL != "" {
		cfg.Models.ServerURL = serverURL
	}
	if env := os.Getenv("DENTAL_SERVER_URL"); env != "" && serverURL == "" {
		cfg.Models.ServerURL = env
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatal(err)
	}

	var err error
	switch mode {
	case "triage":
		err = runTriage(cfg, in, outDir, click, diagnose)
	case "convert-bbox":
		err = runConvertBBox(cfg, annotations, outDir)
	case "convert-problem":
		err = runConvertProblem(cfg, annotations, outDir)
	case "convert-crops":
		err = runConvertCrops(annotations, outDir, cropStyle)
	case "convert-findings":
		err = runConvertFindings(annotations, outDir, seed)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runTriage(cfg *config.Config, in, outDir, click string, diagnose bool) error {
	if in == "" {
		return fmt.Errorf("usage: %s -mode triage -in xray.jpg [-click x,y] [-diagnose]", filepath.Base(os.Args[0]))
	}

	client, err := ollama.NewClient(cfg.Models.ServerURL, ollama.Models{
		Detect:   cfg.Models.DetectModel,
		Classify: cfg.Models.ClassifyModel,
		Diagnose: cfg.Models.DiagnoseModel,
	})
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	s, err := dentaltriage.NewSession(cfg, client, client, client)
	if err != nil {
		return err
	}

	img, err := dentaltriage.LoadXRay(in)
	if err != nil {
		return err
	}
	s.SubmitImage(dentaltriage.PrepareDetectionInput(img, cfg.Session.DetectPadSize))

	ctx := context.Background()
	dets, err := s.RunDetection(ctx)
	if err != nil {
		return err
	}
	if len(dets) == 0 {
		log.Info("no teeth detected in the image")
		return nil
	}

	treatmentCount := 0
	for _, d := range dets {
		status := "no treatment"
		if d.Treated() {
			status = "treatment"
			treatmentCount++
		}
		log.Infof("[%d] %s (%s)", d.Index+1, d.Label, status)
	}
	log.Infof("detected %d teeth, %d need treatment", len(dets), treatmentCount)

	annotatedPath := filepath.Join(outDir, "annotated."+cfg.Output.Format)
	if err := processing.SaveImage(s.Annotated(), annotatedPath, cfg.Output.Format, cfg.Output.Quality, false); err != nil {
		return fmt.Errorf("failed to save annotated image: %w", err)
	}
	log.Infof("wrote %s", annotatedPath)

	if click == "" {
		return nil
	}
	x, y, err := parsePoint(click)
	if err != nil {
		return err
	}

	sel, ok, err := s.SelectAt(x, y)
	if err != nil {
		return err
	}
	if !ok {
		log.Infof("no tooth at (%.0f, %.0f)", x, y)
		return nil
	}
	log.Infof("selected tooth %d: %s", sel.Index+1, sel.Label)

	cropPath := filepath.Join(outDir, "selected."+cfg.Output.Format)
	if err := processing.SaveImage(s.SelectedCrop(), cropPath, cfg.Output.Format, cfg.Output.Quality, false); err != nil {
		return fmt.Errorf("failed to save crop: %w", err)
	}
	log.Infof("wrote %s", cropPath)

	if !diagnose {
		return nil
	}
	finding, err := s.Diagnose(ctx)
	if err != nil {
		var mie *session.ModelInvocationError
		if errors.As(err, &mie) {
			return fmt.Errorf("diagnosis stage %q failed: %w", mie.Stage, mie.Err)
		}
		return err
	}
	fmt.Println(finding)
	return nil
}

func runConvertBBox(cfg *config.Config, annotations, outDir string) error {
	items, codec, err := loadConversionInputs(cfg, annotations)
	if err != nil {
		return err
	}
	outPath := filepath.Join(outDir, "bbox_dataset.jsonl")
	n, err := dataset.ConvertBBoxDataset(codec, items, cfg.Dataset.ImageBase, outPath)
	if err != nil {
		return err
	}
	log.Infof("wrote %d records to %s", n, outPath)
	return nil
}

func runConvertProblem(cfg *config.Config, annotations, outDir string) error {
	items, codec, err := loadConversionInputs(cfg, annotations)
	if err != nil {
		return err
	}
	outPath := filepath.Join(outDir, "tooth_problem_dataset.jsonl")
	n, err := dataset.ConvertProblemToothDataset(codec, items, outPath)
	if err != nil {
		return err
	}
	log.Infof("wrote %d records to %s", n, outPath)
	return nil
}

func runConvertCrops(annotations, outDir, style string) error {
	if annotations == "" {
		return fmt.Errorf("-annotations is required for convert modes")
	}
	items, err := dataset.LoadAnnotations(annotations)
	if err != nil {
		return err
	}

	var builder *dataset.CropBuilder
	switch style {
	case "treatment":
		builder = dataset.NewTreatmentCropBuilder()
	case "diagnosis":
		builder = dataset.NewDiagnosisCropBuilder()
	default:
		return fmt.Errorf("unknown crop style %q", style)
	}

	n, err := builder.Build(items, filepath.Dir(annotations), outDir)
	if err != nil {
		return err
	}
	log.Infof("wrote %d crops to %s", n, outDir)
	return nil
}

func runConvertFindings(annotations, outDir string, seed int64) error {
	if annotations == "" {
		return fmt.Errorf("-annotations is required for convert modes")
	}
	items, err := dataset.LoadAnnotations(annotations)
	if err != nil {
		return err
	}

	records := dataset.BuildFindingRecords(items, rand.New(rand.NewSource(seed)))

	outPath := filepath.Join(outDir, "findings.jsonl")
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	log.Infof("wrote %d records to %s", len(records), outPath)
	return nil
}

func loadConversionInputs(cfg *config.Config, annotations string) ([]types.AnnotatedImage, *tokens.Codec, error) {
	if annotations == "" {
		return nil, nil, fmt.Errorf("-annotations is required for convert modes")
	}
	items, err := dataset.LoadAnnotations(annotations)
	if err != nil {
		return nil, nil, err
	}
	codec, err := tokens.New(cfg.Codec.Quantization)
	if err != nil {
		return nil, nil, err
	}
	return items, codec, nil
}

func parsePoint(s string) (float64, float64, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid click point %q, expected x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid click point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid click point %q: %w", s, err)
	}
	return x, y, nil
}
