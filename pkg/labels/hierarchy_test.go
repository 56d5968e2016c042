package labels

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFine(t *testing.T) {
	require.Equal(t, "central incisor", Resolve("central_incisor", Fine))
	require.Equal(t, "canine", Resolve("canine", Fine))
	require.Equal(t, "third molar", Resolve("third_molar", Fine))
}

func TestResolveGroup(t *testing.T) {
	require.Equal(t, "incisor", Resolve("lateral_incisor", Group))
	require.Equal(t, "premolar", Resolve("first_premolar", Group))
	require.Equal(t, "molar", Resolve("second_molar", Group))
	require.Equal(t, "canine", Resolve("canine", Group))
}

func TestResolveFallback(t *testing.T) {
	require.Equal(t, "tooth", Resolve("first_molar", Fallback))
	require.Equal(t, "tooth", Resolve("canine", Fallback))
}

func TestResolveUnknownLabel(t *testing.T) {
	// Unknown labels get the sentinel at every granularity.
	for _, g := range []Granularity{Fine, Group, Fallback} {
		require.Equal(t, "tooth", Resolve("wisdom_fang", g))
	}
	require.False(t, Known("wisdom_fang"))
	require.True(t, Known("canine"))
}

func TestGroupsSorted(t *testing.T) {
	require.Equal(t, []string{"canine", "incisor", "molar", "premolar"}, Groups())
}

func TestDetectPrompt(t *testing.T) {
	require.Equal(t, "detect canine; detect incisor; detect molar; detect premolar;", DetectPrompt())
}
