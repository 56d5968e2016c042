package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 1024, cfg.Codec.Quantization)
	require.Equal(t, 448, cfg.Session.CropSize)
	require.Equal(t, 1.2, cfg.Dataset.TreatmentMultiplier)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Codec.Quantization = 1 },
		func(c *Config) { c.Codec.Quantization = 20000 },
		func(c *Config) { c.Session.DetectPadSize = 0 },
		func(c *Config) { c.Session.CropFraction = -0.1 },
		func(c *Config) { c.Session.CropSize = 0 },
		func(c *Config) { c.Dataset.TreatmentMultiplier = 0.5 },
		func(c *Config) { c.Dataset.JPEGQuality = 101 },
		func(c *Config) { c.Output.Quality = 0 },
	}

	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		require.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Models.ServerURL = "http://gpu-box:11434"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
