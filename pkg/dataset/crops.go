package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/bitanath/dental-triage/pkg/geometry"
	"github.com/bitanath/dental-triage/pkg/processing"
	"github.com/bitanath/dental-triage/pkg/types"
)

// CropBuilder writes per-tooth crop datasets: each labelled tooth
// becomes one square image prepared with the shared geometry pipeline
// plus one JSONL metadata line. The pipeline parameters are part of the
// downstream model's training contract and must match at inference.
type CropBuilder struct {
	Pipeline geometry.Pipeline
	Quality  int
	log      *logrus.Entry
}

// NewTreatmentCropBuilder prepares crops the way the treatment
// classifier was trained: total box size scaled by 1.2, black padding,
// 448px output.
func NewTreatmentCropBuilder() *CropBuilder {
	return &CropBuilder{
		Pipeline: geometry.Pipeline{
			ExpandMultiplier: 1.2,
			Fill:             color.Black,
			TargetSize:       448,
		},
		Quality: 95,
		log:     logrus.WithField("component", "crops"),
	}
}

// NewDiagnosisCropBuilder prepares crops the way the diagnosis model
// was trained: 20% per-side expansion, black padding, 448px output.
func NewDiagnosisCropBuilder() *CropBuilder {
	return &CropBuilder{
		Pipeline: geometry.Pipeline{
			ExpandFraction: 0.2,
			Fill:           color.Black,
			TargetSize:     448,
		},
		Quality: 95,
		log:     logrus.WithField("component", "crops"),
	}
}

// Build crops every labelled tooth in every annotated image under
// imageDir into outDir and writes dataset.jsonl beside the crops. Teeth
// whose crop fails (missing image, degenerate box) are logged and
// skipped; the run continues.
func (b *CropBuilder) Build(items []types.AnnotatedImage, imageDir, outDir string) (int, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	f, err := os.Create(filepath.Join(outDir, "dataset.jsonl"))
	if err != nil {
		return 0, fmt.Errorf("failed to create metadata file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()
	enc := json.NewEncoder(w)

	written := 0
	for _, item := range items {
		img, err := processing.LoadImage(filepath.Join(imageDir, item.File))
		if err != nil {
			b.logWarn(item.File, err)
			continue
		}

		for _, obj := range item.Objects {
			box := types.PixelBox{
				X1: float64(obj.X1), Y1: float64(obj.Y1),
				X2: float64(obj.X2), Y2: float64(obj.Y2),
			}
			crop, err := b.Pipeline.Apply(img, box)
			if err != nil {
				b.logWarn(item.File, err)
				continue
			}

			filename := cropFilename(item.File, written)
			if err := imaging.Save(crop, filepath.Join(outDir, filename), imaging.JPEGQuality(b.Quality)); err != nil {
				b.logWarn(item.File, err)
				continue
			}

			record := types.CropRecord{
				Tooth:     obj.Tooth,
				Treatment: obj.Treatment,
				Diagnosis: obj.Diagnosis,
				Filename:  filename,
			}
			if err := enc.Encode(record); err != nil {
				return written, fmt.Errorf("failed to write metadata for %s: %w", filename, err)
			}
			written++
		}
	}
	return written, nil
}

func (b *CropBuilder) logWarn(file string, err error) {
	if b.log != nil {
		b.log.WithError(err).WithField("image", file).Warn("skipping crop")
	}
}

func cropFilename(sourceFile string, n int) string {
	stem := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))
	return fmt.Sprintf("%s_tooth_%05d.jpg", stem, n)
}
