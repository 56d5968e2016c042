package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/bitanath/dental-triage/pkg/geometry"
	"github.com/bitanath/dental-triage/pkg/labels"
	"github.com/bitanath/dental-triage/pkg/tokens"
	"github.com/bitanath/dental-triage/pkg/types"
)

// TreatmentLabel is the classifier output marking a tooth that needs
// treatment; any other label means no treatment.
const TreatmentLabel = "treatment"

// DiagnosisInstruction is the fixed instruction sent with a crop to the
// diagnosis model.
const DiagnosisInstruction = "Analyze this dental radiograph and provide findings."

// NotApplicableText is returned by Diagnose for teeth the classifier
// marked as not needing treatment. The diagnosis model is not invoked
// for those: skipping an inference call the result of which is known to
// be empty keeps accelerator use down.
const NotApplicableText = "Diagnosis not provided as no treatment diagnosed"

// Detector runs the detection model over a full X-ray and returns its
// raw token output for the codec to decode.
type Detector interface {
	DetectTeeth(ctx context.Context, img image.Image, prompt string) (string, error)
}

// TreatmentClassifier labels one prepared tooth crop with a category
// from the fixed treatment label set.
type TreatmentClassifier interface {
	ClassifyTreatment(ctx context.Context, crop image.Image) (string, error)
}

// Diagnoser produces a textual finding for one prepared tooth crop.
type Diagnoser interface {
	Diagnose(ctx context.Context, crop image.Image, instruction string) (string, error)
}

// Stage names identify the failing collaborator in a
// ModelInvocationError.
const (
	StageDetect   = "detect"
	StageClassify = "classify"
	StageDiagnose = "diagnose"
)

// ModelInvocationError wraps a collaborator failure with the stage it
// happened in. The session state is unchanged when one is returned, so
// the caller can retry the same transition.
type ModelInvocationError struct {
	Stage string
	Err   error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("%s model invocation failed: %v", e.Stage, e.Err)
}

func (e *ModelInvocationError) Unwrap() error {
	return e.Err
}

// State is the session lifecycle position.
type State string

const (
	// StateEmpty holds an image (or nothing) with no detections.
	StateEmpty State = "empty"
	// StateDetecting is transient while the detector and classifier run.
	StateDetecting State = "detecting"
	// StateDetected has detections available for selection.
	StateDetected State = "detected"
	// StateSelected has one detection selected and its crop prepared.
	StateSelected State = "selected"
	// StateDiagnosing is transient while the diagnosis model runs.
	StateDiagnosing State = "diagnosing"
)

var (
	// ErrNoImage is returned by RunDetection before any image was
	// submitted.
	ErrNoImage = errors.New("no image submitted")
	// ErrNotDetected is returned by SelectAt outside the detected or
	// selected states.
	ErrNotDetected = errors.New("detection has not run")
	// ErrNoSelection is returned by Diagnose when no tooth is selected.
	ErrNoSelection = errors.New("no tooth selected")
)

// Config carries the crop preparation contracts and detection prompt.
// Each pipeline must match what the consuming model was trained with.
type Config struct {
	Codec        *tokens.Codec
	ClassifyCrop geometry.Pipeline
	DiagnoseCrop geometry.Pipeline
	Prompt       string
}

// DefaultConfig returns the parameters the shipped models were
// prepared with: 1024-step tokens, 20% per-side expansion, black
// square padding, 448px crops.
func DefaultConfig() Config {
	crop := geometry.Pipeline{
		ExpandFraction: 0.2,
		Fill:           color.Black,
		TargetSize:     448,
	}
	return Config{
		Codec:        tokens.Default(),
		ClassifyCrop: crop,
		DiagnoseCrop: crop,
		Prompt:       labels.DetectPrompt(),
	}
}

// Session drives one detect, select, diagnose interaction over a single
// image. It is not safe for concurrent transitions; serialize access
// externally, one session per interaction stream. Collaborators are the
// only blocking calls and run synchronously, classification strictly
// one crop at a time so at most one model call is in flight.
type Session struct {
	detector   Detector
	classifier TreatmentClassifier
	diagnoser  Diagnoser
	config     Config

	state        State
	img          image.Image
	detections   []types.Detection
	selected     int
	selectedCrop image.Image
}

// New creates a session with default configuration.
func New(d Detector, c TreatmentClassifier, g Diagnoser) *Session {
	return NewWithConfig(d, c, g, DefaultConfig())
}

// NewWithConfig creates a session with custom crop contracts.
func NewWithConfig(d Detector, c TreatmentClassifier, g Diagnoser, cfg Config) *Session {
	if cfg.Codec == nil {
		cfg.Codec = tokens.Default()
	}
	if cfg.Prompt == "" {
		cfg.Prompt = labels.DetectPrompt()
	}
	return &Session{
		detector:   d,
		classifier: c,
		diagnoser:  g,
		config:     cfg,
		state:      StateEmpty,
		selected:   -1,
	}
}

// State returns the current lifecycle position.
func (s *Session) State() State {
	return s.state
}

// Image returns the held image, nil before SubmitImage.
func (s *Session) Image() image.Image {
	return s.img
}

// Detections returns a copy of the current detections in decode order.
func (s *Session) Detections() []types.Detection {
	out := make([]types.Detection, len(s.detections))
	copy(out, s.detections)
	return out
}

// Selected returns the currently selected detection.
func (s *Session) Selected() (types.Detection, bool) {
	if s.selected < 0 || s.selected >= len(s.detections) {
		return types.Detection{}, false
	}
	return s.detections[s.selected], true
}

// SelectedCrop returns the prepared crop of the selected detection,
// nil when nothing is selected.
func (s *Session) SelectedCrop() image.Image {
	return s.selectedCrop
}

// SubmitImage replaces the session image. Valid from any state.
// Previous detections and the selection are discarded wholesale.
func (s *Session) SubmitImage(img image.Image) {
	s.img = img
	s.detections = nil
	s.selected = -1
	s.selectedCrop = nil
	s.state = StateEmpty
}

// RunDetection invokes the detector over the held image, decodes its
// output and classifies every detection in decode order, one at a
// time. Zero decoded detections leaves the session empty and returns an
// empty slice: "nothing found" is an outcome, not an error. A
// collaborator failure returns a ModelInvocationError and leaves the
// session exactly as it was.
func (s *Session) RunDetection(ctx context.Context) ([]types.Detection, error) {
	if s.img == nil {
		return nil, ErrNoImage
	}

	prev := s.state
	s.state = StateDetecting

	raw, err := s.detector.DetectTeeth(ctx, s.img, s.config.Prompt)
	if err != nil {
		s.state = prev
		return nil, &ModelInvocationError{Stage: StageDetect, Err: err}
	}

	b := s.img.Bounds()
	detections := s.config.Codec.Decode(raw, b.Dx(), b.Dy())
	if len(detections) == 0 {
		s.detections = nil
		s.selected = -1
		s.selectedCrop = nil
		s.state = StateEmpty
		return nil, nil
	}

	// detections is still local here, so a mid-loop classifier failure
	// commits nothing and the transition stays retryable.
	for i := range detections {
		crop, err := s.config.ClassifyCrop.Apply(s.img, detections[i].Box)
		if err != nil {
			// Degenerate box at the image edge: leave the flag unset
			// and keep going, same as skipping a malformed record in
			// batch conversion.
			continue
		}
		label, err := s.classifier.ClassifyTreatment(ctx, crop)
		if err != nil {
			s.state = prev
			return nil, &ModelInvocationError{Stage: StageClassify, Err: err}
		}
		needs := label == TreatmentLabel
		detections[i].NeedsTreatment = &needs
	}

	s.detections = detections
	s.selected = -1
	s.selectedCrop = nil
	s.state = StateDetected
	return s.Detections(), nil
}

// SelectAt hit-tests a click point against the detections in index
// order; the first containing box wins, a deliberate tie-break for
// overlapping boxes. A miss changes nothing and reports ok=false. A hit
// prepares the display crop and moves the session to the selected
// state.
func (s *Session) SelectAt(x, y float64) (types.Detection, bool, error) {
	if s.state != StateDetected && s.state != StateSelected {
		return types.Detection{}, false, ErrNotDetected
	}

	hit := -1
	for i, det := range s.detections {
		if det.Box.Contains(x, y) {
			hit = i
			break
		}
	}
	if hit < 0 {
		return types.Detection{}, false, nil
	}

	crop, err := s.config.DiagnoseCrop.Apply(s.img, s.detections[hit].Box)
	if err != nil {
		return types.Detection{}, false, fmt.Errorf("preparing crop for tooth %d: %w", hit+1, err)
	}

	s.selected = hit
	s.selectedCrop = crop
	s.state = StateSelected
	return s.detections[hit], true, nil
}

// Diagnose produces the finding text for the selected tooth. Teeth the
// classifier marked as not needing treatment short-circuit to the fixed
// not-applicable text without invoking the diagnosis model. On success
// the session returns to the selected state so the tooth can be
// re-diagnosed or another one selected.
func (s *Session) Diagnose(ctx context.Context) (string, error) {
	if s.state != StateSelected {
		return "", ErrNoSelection
	}

	det := s.detections[s.selected]
	if !det.Treated() {
		return NotApplicableText, nil
	}

	s.state = StateDiagnosing
	finding, err := s.diagnoser.Diagnose(ctx, s.selectedCrop, DiagnosisInstruction)
	s.state = StateSelected
	if err != nil {
		return "", &ModelInvocationError{Stage: StageDiagnose, Err: err}
	}
	return finding, nil
}
