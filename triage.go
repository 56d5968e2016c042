// Package dentaltriage wires X-ray loading, the detection input
// transform and session construction into one entry point for callers
// that do not need the individual packages.
package dentaltriage

import (
	"fmt"
	"image"
	"image/color"

	"github.com/bitanath/dental-triage/internal/config"
	"github.com/bitanath/dental-triage/pkg/geometry"
	"github.com/bitanath/dental-triage/pkg/processing"
	"github.com/bitanath/dental-triage/pkg/session"
	"github.com/bitanath/dental-triage/pkg/tokens"
)

// MinXRaySize is the smallest usable X-ray dimension; anything below it
// cannot hold a readable tooth.
const MinXRaySize = 100

// LoadXRay loads and validates an X-ray from a file path or URL.
func LoadXRay(source string) (image.Image, error) {
	img, err := processing.LoadImageSmart(source)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() < MinXRaySize || b.Dy() < MinXRaySize {
		return nil, fmt.Errorf("image too small: %dx%d (minimum: %d)", b.Dx(), b.Dy(), MinXRaySize)
	}
	return img, nil
}

// PrepareDetectionInput pads the X-ray to a black square and scales it
// to the detection model's input resolution. Detections are reported
// against this prepared canvas, not the original file.
func PrepareDetectionInput(img image.Image, padSize int) image.Image {
	return geometry.Resize(geometry.SquarePad(img, color.Black), padSize)
}

// NewSession builds a triage session from configuration and the three
// model collaborators.
func NewSession(cfg *config.Config, d session.Detector, c session.TreatmentClassifier, g session.Diagnoser) (*session.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	codec, err := tokens.New(cfg.Codec.Quantization)
	if err != nil {
		return nil, err
	}

	crop := geometry.Pipeline{
		ExpandFraction: cfg.Session.CropFraction,
		Fill:           color.Black,
		TargetSize:     cfg.Session.CropSize,
	}
	return session.NewWithConfig(d, c, g, session.Config{
		Codec:        codec,
		ClassifyCrop: crop,
		DiagnoseCrop: crop,
	}), nil
}
