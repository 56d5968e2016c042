package dentaltriage

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/bitanath/dental-triage/internal/config"
)

type fixedDetector struct{ output string }

func (d fixedDetector) DetectTeeth(_ context.Context, _ image.Image, _ string) (string, error) {
	return d.output, nil
}

type fixedClassifier struct{ label string }

func (c fixedClassifier) ClassifyTreatment(_ context.Context, _ image.Image) (string, error) {
	return c.label, nil
}

type fixedDiagnoser struct{ finding string }

func (g fixedDiagnoser) Diagnose(_ context.Context, _ image.Image, _ string) (string, error) {
	return g.finding, nil
}

func writeXRay(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.Gray{Y: 100})
		}
	}
	path := filepath.Join(t.TempDir(), "xray.jpg")
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestLoadXRay(t *testing.T) {
	img, err := LoadXRay(writeXRay(t, 640, 480))
	require.NoError(t, err)
	require.Equal(t, 640, img.Bounds().Dx())
}

func TestLoadXRayTooSmall(t *testing.T) {
	_, err := LoadXRay(writeXRay(t, 50, 50))
	require.Error(t, err)
}

func TestPrepareDetectionInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 800, 400))
	prepared := PrepareDetectionInput(img, 1024)
	require.Equal(t, 1024, prepared.Bounds().Dx())
	require.Equal(t, 1024, prepared.Bounds().Dy())
}

func TestNewSessionEndToEnd(t *testing.T) {
	cfg := config.Default()
	s, err := NewSession(cfg,
		fixedDetector{output: "<loc0100><loc0100><loc0400><loc0400> molar;"},
		fixedClassifier{label: "treatment"},
		fixedDiagnoser{finding: "apical periodontitis"},
	)
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	s.SubmitImage(PrepareDetectionInput(img, cfg.Session.DetectPadSize))

	dets, err := s.RunDetection(context.Background())
	require.NoError(t, err)
	require.Len(t, dets, 1)

	_, ok, err := s.SelectAt(200, 200)
	require.NoError(t, err)
	require.True(t, ok)

	finding, err := s.Diagnose(context.Background())
	require.NoError(t, err)
	require.Equal(t, "apical periodontitis", finding)
}

func TestNewSessionRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Codec.Quantization = 0
	_, err := NewSession(cfg, fixedDetector{}, fixedClassifier{}, fixedDiagnoser{})
	require.Error(t, err)
}
