package dataset

import (
	"bufio"
	"encoding/json"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/bitanath/dental-triage/pkg/tokens"
	"github.com/bitanath/dental-triage/pkg/types"
)

func sampleAnnotations() []types.AnnotatedImage {
	return []types.AnnotatedImage{
		{
			File: "panoramic_img001.jpg",
			Objects: []types.AnnotatedObject{
				{Tooth: "first_molar", Treatment: "rct", Diagnosis: "Deep caries reaching pulp.", X1: 100, Y1: 200, X2: 180, Y2: 320},
				{Tooth: "canine", Treatment: "none", Diagnosis: "none", X1: 400, Y1: 210, X2: 450, Y2: 330},
			},
		},
		{
			File: "iopar_img042.jpg",
			Objects: []types.AnnotatedObject{
				{Tooth: "second_premolar", Treatment: "extraction", Diagnosis: "Root fracture", X1: 50, Y1: 60, X2: 120, Y2: 200},
			},
		},
	}
}

func TestBuildBBoxRecordGranularities(t *testing.T) {
	codec := tokens.Default()
	record, err := BuildBBoxRecord(codec, sampleAnnotations()[0], "dataset_all")
	require.NoError(t, err)

	require.Equal(t, filepath.Join("dataset_all", "panoramic_img001.jpg"), record.Image)
	require.Equal(t, "detect canine; detect incisor; detect molar; detect premolar;", record.Prompt)
	require.Equal(t, 2, record.NumObjects)

	// Default target carries group granularity.
	require.Equal(t, record.TargetGroup, record.Target)
	require.Contains(t, record.Target, " molar")
	require.Contains(t, record.Target, " canine")
	require.Contains(t, record.TargetFallback, " tooth")
	require.NotContains(t, record.TargetFallback, "molar")
}

func TestBBoxRecordRoundTrip(t *testing.T) {
	codec := tokens.Default()
	item := sampleAnnotations()[0]
	record, err := BuildBBoxRecord(codec, item, "")
	require.NoError(t, err)

	// Decoding the target reproduces the object count and boxes,
	// modulo rescale rounding.
	dets := codec.Decode(record.Target, 1023, 1023)
	require.Len(t, dets, record.NumObjects)
	for i, obj := range item.Objects {
		require.InDelta(t, float64(obj.X1), dets[i].Box.X1, 1e-9)
		require.InDelta(t, float64(obj.Y1), dets[i].Box.Y1, 1e-9)
		require.InDelta(t, float64(obj.X2), dets[i].Box.X2, 1e-9)
		require.InDelta(t, float64(obj.Y2), dets[i].Box.Y2, 1e-9)
	}
}

func TestBuildBBoxRecordOutOfRange(t *testing.T) {
	codec := tokens.Default()
	bad := types.AnnotatedImage{
		File:    "broken.jpg",
		Objects: []types.AnnotatedObject{{Tooth: "canine", X1: -5, Y1: 0, X2: 10, Y2: 10}},
	}
	_, err := BuildBBoxRecord(codec, bad, "")
	require.Error(t, err)
}

func TestBuildProblemToothRecord(t *testing.T) {
	codec := tokens.Default()
	record, err := BuildProblemToothRecord(codec, sampleAnnotations()[0])
	require.NoError(t, err)

	require.Equal(t, ProblemToothPrompt, record.Prompt)
	require.Contains(t, record.Target, " problem tooth")
	parts := strings.Split(record.Target, tokens.TargetSeparator)
	require.Len(t, parts, 2)
	require.True(t, strings.HasSuffix(parts[1], " tooth"))
}

func TestConvertBBoxDatasetSkipsMalformed(t *testing.T) {
	codec := tokens.Default()
	items := sampleAnnotations()
	items = append(items, types.AnnotatedImage{
		File:    "broken.jpg",
		Objects: []types.AnnotatedObject{{Tooth: "canine", X1: 0, Y1: 0, X2: 50000, Y2: 10}},
	})

	outPath := filepath.Join(t.TempDir(), "bbox_dataset.jsonl")
	written, err := ConvertBBoxDataset(codec, items, "", outPath)
	require.NoError(t, err)
	require.Equal(t, 2, written)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record types.BBoxRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		require.NotEmpty(t, record.Target)
		lines++
	}
	require.Equal(t, 2, lines)
}

func TestCropBuilderBuild(t *testing.T) {
	dir := t.TempDir()
	imageDir := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(imageDir, 0o755))

	img := image.NewRGBA(image.Rect(0, 0, 600, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 600; x++ {
			img.Set(x, y, color.Gray{Y: 120})
		}
	}
	require.NoError(t, imaging.Save(img, filepath.Join(imageDir, "panoramic_img001.jpg")))
	require.NoError(t, imaging.Save(img, filepath.Join(imageDir, "iopar_img042.jpg")))

	outDir := filepath.Join(dir, "crops")
	builder := NewTreatmentCropBuilder()
	written, err := builder.Build(sampleAnnotations(), imageDir, outDir)
	require.NoError(t, err)
	require.Equal(t, 3, written)

	// First crop exists at the trained resolution.
	crop, err := imaging.Open(filepath.Join(outDir, "panoramic_img001_tooth_00000.jpg"))
	require.NoError(t, err)
	require.Equal(t, 448, crop.Bounds().Dx())

	// Metadata lines mirror the annotation fields.
	f, err := os.Open(filepath.Join(outDir, "dataset.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var records []types.CropRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r types.CropRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.Len(t, records, 3)
	require.Equal(t, "first_molar", records[0].Tooth)
	require.Equal(t, "rct", records[0].Treatment)
}

func TestCropBuilderSkipsMissingImage(t *testing.T) {
	dir := t.TempDir()
	builder := NewDiagnosisCropBuilder()

	written, err := builder.Build(sampleAnnotations(), filepath.Join(dir, "absent"), filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Zero(t, written)
}

func TestImageType(t *testing.T) {
	require.Equal(t, "OPG", ImageType("panoramic_img109.jpg"))
	require.Equal(t, "Periapical", ImageType("rct_img29.jpg"))
}

func TestBuildFindingRecords(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	records := BuildFindingRecords(sampleAnnotations(), rng)

	// The healthy canine has nothing to phrase.
	require.Len(t, records, 2)

	first := records[0]
	require.Equal(t, "OPG", first.Type)
	require.Equal(t, "rct", first.Treatment)
	require.Contains(t, first.TextSummary, "rct")
	require.Contains(t, first.TextSummary, "deep caries reaching pulp")
	require.NotContains(t, first.TextSummary, "pulp..")

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(first.JSONSummary), &summary))
	require.Equal(t, "first_molar", summary["tooth"])
}

func TestBuildFindingRecordsDeterministicPerSeed(t *testing.T) {
	a := BuildFindingRecords(sampleAnnotations(), rand.New(rand.NewSource(7)))
	b := BuildFindingRecords(sampleAnnotations(), rand.New(rand.NewSource(7)))
	require.Equal(t, a, b)
}
