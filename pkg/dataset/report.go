package dataset

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/bitanath/dental-triage/pkg/types"
)

// findingTemplates phrase a treatment and diagnosis pair as an
// impersonal clinical sentence, varied so a generative model does not
// overfit one phrasing.
var findingTemplates = []string{
	"On the %[1]s image, the recommended treatment is %[2]s due to %[3]s.",
	"This %[1]s shows a condition that calls for %[2]s because %[3]s.",
	"Clinical findings on this %[1]s suggest %[2]s as %[3]s.",
	"The %[1]s indicates an appropriate intervention of %[2]s given that %[3]s.",
	"Treatment plan based on this %[1]s includes %[2]s as the diagnosis indicates %[3]s.",
	"Based on clinical evidence from this %[1]s of %[3]s, %[2]s is advised.",
	"The %[1]s reveals %[3]s, necessitating %[2]s.",
	"Considering the findings on this %[1]s of %[3]s, the best course of action is %[2]s.",
	"The %[1]s indicates treatment of %[2]s in response to %[3]s.",
	"This %[1]s demonstrates %[3]s, requiring %[2]s.",
}

// FindingRecord is one diagnosis-model training line: a labelled tooth
// with its clinical text summary.
type FindingRecord struct {
	Image       string `json:"image"`
	Type        string `json:"type"`
	Tooth       string `json:"tooth"`
	Treatment   string `json:"treatment"`
	Diagnosis   string `json:"diagnosis"`
	BBox        [4]int `json:"bbox"`
	TextSummary string `json:"text_summary"`
	JSONSummary string `json:"json_summary"`
}

// ImageType classifies a source file as a panoramic (OPG) or periapical
// radiograph from its name.
func ImageType(filename string) string {
	if strings.Contains(strings.ToLower(filename), "panoramic") {
		return "OPG"
	}
	return "Periapical"
}

// BuildFindingRecords converts annotations into finding records. Teeth
// with an empty or "none" treatment or diagnosis carry nothing to
// phrase and are dropped. The template choice comes from rng so a
// seeded run is reproducible.
func BuildFindingRecords(items []types.AnnotatedImage, rng *rand.Rand) []FindingRecord {
	var out []FindingRecord
	for _, item := range items {
		imgType := ImageType(item.File)

		for _, obj := range item.Objects {
			treatment := strings.ToLower(strings.TrimSpace(obj.Treatment))
			diagnosis := strings.TrimSpace(obj.Diagnosis)
			if treatment == "" || treatment == "none" || treatment == "null" {
				continue
			}
			if diagnosis == "" || strings.EqualFold(diagnosis, "none") || strings.EqualFold(diagnosis, "null") {
				continue
			}

			summary, _ := json.Marshal(map[string]any{
				"tooth":     obj.Tooth,
				"treatment": treatment,
				"diagnosis": diagnosis,
				"type":      imgType,
				"bbox":      [4]int{obj.X1, obj.Y1, obj.X2, obj.Y2},
			})

			out = append(out, FindingRecord{
				Image:       item.File,
				Type:        imgType,
				Tooth:       obj.Tooth,
				Treatment:   treatment,
				Diagnosis:   diagnosis,
				BBox:        [4]int{obj.X1, obj.Y1, obj.X2, obj.Y2},
				TextSummary: formatFinding(rng, imgType, treatment, diagnosis),
				JSONSummary: string(summary),
			})
		}
	}
	return out
}

// formatFinding lowercases the diagnosis for mid-sentence insertion and
// strips its trailing punctuation before applying a template.
func formatFinding(rng *rand.Rand, imgType, treatment, diagnosis string) string {
	diagnosis = strings.TrimRight(diagnosis, ".!?")
	if diagnosis != "" {
		diagnosis = strings.ToLower(diagnosis[:1]) + diagnosis[1:]
	}
	template := findingTemplates[rng.Intn(len(findingTemplates))]
	return fmt.Sprintf(template, imgType, treatment, diagnosis)
}
