// Package dataset builds the offline training datasets: detection
// targets in the location-token format, per-tooth crop sets, and
// narrative finding records. Converters share the token codec and
// geometry pipeline with the live triage session, so a record decoded
// back always reproduces the boxes it was built from.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bitanath/dental-triage/pkg/labels"
	"github.com/bitanath/dental-triage/pkg/tokens"
	"github.com/bitanath/dental-triage/pkg/types"
)

// ProblemToothPrompt is the two-class detection prompt for the
// healthy/problem variant dataset.
const ProblemToothPrompt = "detect tooth; detect problem tooth;"

// LoadAnnotations reads a JSON annotation file: an array of images,
// each with its labelled teeth.
func LoadAnnotations(path string) ([]types.AnnotatedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotations: %w", err)
	}
	var items []types.AnnotatedImage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse annotations: %w", err)
	}
	return items, nil
}

// BuildBBoxRecord turns one annotated image into a detection training
// record with targets at every label granularity. Targets are encoded
// detections joined by "; "; the default target uses group granularity,
// matching what the detection model was trained against.
func BuildBBoxRecord(codec *tokens.Codec, item types.AnnotatedImage, imageBase string) (types.BBoxRecord, error) {
	grouped := make([]string, 0, len(item.Objects))
	fallback := make([]string, 0, len(item.Objects))

	for _, obj := range item.Objects {
		box := obj.NormalizedBox()

		g, err := codec.Encode(box, labels.Resolve(obj.Tooth, labels.Group))
		if err != nil {
			return types.BBoxRecord{}, fmt.Errorf("object %q in %s: %w", obj.Tooth, item.File, err)
		}
		grouped = append(grouped, g)

		f, err := codec.Encode(box, labels.Resolve(obj.Tooth, labels.Fallback))
		if err != nil {
			return types.BBoxRecord{}, fmt.Errorf("object %q in %s: %w", obj.Tooth, item.File, err)
		}
		fallback = append(fallback, f)
	}

	image := item.File
	if imageBase != "" {
		image = filepath.Join(imageBase, item.File)
	}

	return types.BBoxRecord{
		Image:          image,
		Prompt:         labels.DetectPrompt(),
		Target:         strings.Join(grouped, tokens.TargetSeparator),
		TargetGroup:    strings.Join(grouped, tokens.TargetSeparator),
		TargetFallback: strings.Join(fallback, tokens.TargetSeparator),
		NumObjects:     len(item.Objects),
	}, nil
}

// BuildProblemToothRecord turns one annotated image into the two-class
// variant: every tooth with a treatment other than "none" is labelled
// "problem tooth".
func BuildProblemToothRecord(codec *tokens.Codec, item types.AnnotatedImage) (types.BBoxRecord, error) {
	parts := make([]string, 0, len(item.Objects))
	for _, obj := range item.Objects {
		label := "tooth"
		if obj.Treatment != "" && obj.Treatment != "none" {
			label = "problem tooth"
		}
		enc, err := codec.Encode(obj.NormalizedBox(), label)
		if err != nil {
			return types.BBoxRecord{}, fmt.Errorf("object %q in %s: %w", obj.Tooth, item.File, err)
		}
		parts = append(parts, enc)
	}

	return types.BBoxRecord{
		Image:      item.File,
		Prompt:     ProblemToothPrompt,
		Target:     strings.Join(parts, tokens.TargetSeparator),
		NumObjects: len(item.Objects),
	}, nil
}

// ConvertBBoxDataset builds one JSONL line per annotated image. A
// record that fails to encode is logged and skipped rather than
// aborting the whole run.
func ConvertBBoxDataset(codec *tokens.Codec, items []types.AnnotatedImage, imageBase, outPath string) (int, error) {
	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	enc := json.NewEncoder(w)
	written := 0
	for _, item := range items {
		record, err := BuildBBoxRecord(codec, item, imageBase)
		if err != nil {
			logrus.WithError(err).WithField("image", item.File).Warn("skipping malformed record")
			continue
		}
		if err := enc.Encode(record); err != nil {
			return written, fmt.Errorf("failed to write record for %s: %w", item.File, err)
		}
		written++
	}
	return written, nil
}

// ConvertProblemToothDataset is the two-class counterpart of
// ConvertBBoxDataset.
func ConvertProblemToothDataset(codec *tokens.Codec, items []types.AnnotatedImage, outPath string) (int, error) {
	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	enc := json.NewEncoder(w)
	written := 0
	for _, item := range items {
		record, err := BuildProblemToothRecord(codec, item)
		if err != nil {
			logrus.WithError(err).WithField("image", item.File).Warn("skipping malformed record")
			continue
		}
		if err := enc.Encode(record); err != nil {
			return written, fmt.Errorf("failed to write record for %s: %w", item.File, err)
		}
		written++
	}
	return written, nil
}
