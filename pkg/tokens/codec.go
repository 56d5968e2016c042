package tokens

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bitanath/dental-triage/pkg/types"
)

// DefaultQuantization is the coordinate resolution of the token format:
// 1024 discrete steps, so valid coordinates are 0..1023.
const DefaultQuantization = 1024

// tokenWidth is the zero-padded decimal width of one location token.
// Four digits cap the representable coordinate at 9999 regardless of
// the configured quantization.
const tokenWidth = 4

const maxTokenValue = 9999

// TargetSeparator joins encoded detections in dataset target strings.
const TargetSeparator = "; "

// locPattern matches one detection: four bracketed fixed-width location
// tokens followed by a label running up to the next token, a semicolon
// or the end of the output.
var locPattern = regexp.MustCompile(`<loc(\d{4})><loc(\d{4})><loc(\d{4})><loc(\d{4})>\s*([^;<]+)`)

// OutOfRangeError reports an encode coordinate outside the token window.
type OutOfRangeError struct {
	Value int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("coordinate %d outside token range [0, %d]", e.Value, maxTokenValue)
}

// Codec encodes and decodes location-token detection strings. Encode and
// decode sides must share the same quantization; mixing resolutions
// produces boxes scaled to the wrong image fraction, so the constructor
// treats an unrepresentable quantization as a configuration error.
type Codec struct {
	quant int
}

// New creates a codec with the given quantization resolution.
func New(quantization int) (*Codec, error) {
	if quantization < 2 || quantization-1 > maxTokenValue {
		return nil, fmt.Errorf("quantization %d not representable in %d-digit tokens", quantization, tokenWidth)
	}
	return &Codec{quant: quantization}, nil
}

// Default returns a codec at the standard 1024-step resolution.
func Default() *Codec {
	c, _ := New(DefaultQuantization)
	return c
}

// Quantization returns the configured coordinate resolution.
func (c *Codec) Quantization() int {
	return c.quant
}

// Encode renders a normalized box and its label as a token string:
// four zero-padded tokens in (ymin, xmin, ymax, xmax) order, then a
// space and the label. The row-major order and fixed width match the
// detection model's training format.
func (c *Codec) Encode(box types.NormalizedBox, label string) (string, error) {
	coords := [4]int{box.YMin, box.XMin, box.YMax, box.XMax}
	var sb strings.Builder
	for _, v := range coords {
		if v < 0 || v > maxTokenValue {
			return "", &OutOfRangeError{Value: v}
		}
		fmt.Fprintf(&sb, "<loc%0*d>", tokenWidth, v)
	}
	sb.WriteByte(' ')
	sb.WriteString(label)
	return sb.String(), nil
}

// EncodeAll encodes each box/label pair and joins them with the target
// separator used by the dataset JSONL format.
func (c *Codec) EncodeAll(boxes []types.NormalizedBox, labs []string) (string, error) {
	if len(boxes) != len(labs) {
		return "", fmt.Errorf("box/label count mismatch: %d vs %d", len(boxes), len(labs))
	}
	parts := make([]string, 0, len(boxes))
	for i, b := range boxes {
		enc, err := c.Encode(b, labs[i])
		if err != nil {
			return "", err
		}
		parts = append(parts, enc)
	}
	return strings.Join(parts, TargetSeparator), nil
}

// Decode scans raw model output for detection tokens and rescales each
// box into pixel space for an image of the given dimensions. Matches
// are found left to right and indexed in scan order. Inverted corners
// are corrected by taking min/max rather than rejected. A string with
// no valid tokens decodes to an empty slice: nothing detected is a
// valid outcome, not an error. Unknown labels pass through untouched.
func (c *Codec) Decode(raw string, imgWidth, imgHeight int) []types.Detection {
	matches := locPattern.FindAllStringSubmatch(raw, -1)

	detections := make([]types.Detection, 0, len(matches))
	for _, m := range matches {
		ymin, _ := strconv.Atoi(m[1])
		xmin, _ := strconv.Atoi(m[2])
		ymax, _ := strconv.Atoi(m[3])
		xmax, _ := strconv.Atoi(m[4])

		if ymin > ymax {
			ymin, ymax = ymax, ymin
		}
		if xmin > xmax {
			xmin, xmax = xmax, xmin
		}

		scale := float64(c.quant - 1)
		box := types.PixelBox{
			X1: float64(xmin) / scale * float64(imgWidth),
			Y1: float64(ymin) / scale * float64(imgHeight),
			X2: float64(xmax) / scale * float64(imgWidth),
			Y2: float64(ymax) / scale * float64(imgHeight),
		}

		detections = append(detections, types.Detection{
			Index: len(detections),
			Box:   box,
			Label: strings.TrimSpace(m[5]),
		})
	}

	return detections
}
