package labels

import (
	"sort"
	"strings"
)

// Granularity selects the level of label detail when building targets.
type Granularity string

const (
	// Fine is the full tooth type, eight classes.
	Fine Granularity = "fine"
	// Group collapses tooth types into four anatomical groups.
	Group Granularity = "group"
	// Fallback collapses everything into the single sentinel class.
	Fallback Granularity = "fallback"
)

// FallbackLabel is the sentinel class every unknown or fully collapsed
// label resolves to.
const FallbackLabel = "tooth"

type entry struct {
	group string
}

// hierarchy maps each fine tooth type to its anatomical group. The
// fallback is the same for every entry, so it is not stored per row.
var hierarchy = map[string]entry{
	"central_incisor": {group: "incisor"},
	"lateral_incisor": {group: "incisor"},
	"canine":          {group: "canine"},
	"first_premolar":  {group: "premolar"},
	"second_premolar": {group: "premolar"},
	"first_molar":     {group: "molar"},
	"second_molar":    {group: "molar"},
	"third_molar":     {group: "molar"},
}

// Known reports whether the fine label is present in the hierarchy.
func Known(fine string) bool {
	_, ok := hierarchy[fine]
	return ok
}

// Resolve maps a fine label to the requested granularity. A label
// absent from the hierarchy resolves to the sentinel fallback no matter
// which granularity was asked for. At fine granularity underscores are
// replaced with spaces so the result reads as model-facing text.
func Resolve(fine string, g Granularity) string {
	e, ok := hierarchy[fine]
	if !ok {
		return FallbackLabel
	}
	switch g {
	case Fine:
		return strings.ReplaceAll(fine, "_", " ")
	case Group:
		return e.group
	default:
		return FallbackLabel
	}
}

// Groups returns the distinct top-level groups in alphabetical order.
func Groups() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 4)
	for _, e := range hierarchy {
		if _, ok := seen[e.group]; ok {
			continue
		}
		seen[e.group] = struct{}{}
		out = append(out, e.group)
	}
	sort.Strings(out)
	return out
}

// DetectPrompt builds the fixed multi-category detection prompt: one
// "detect <group>" clause per top-level group, semicolon joined and
// terminated.
func DetectPrompt() string {
	groups := Groups()
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, "detect "+g)
	}
	return strings.Join(parts, "; ") + ";"
}
