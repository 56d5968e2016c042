package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration.
type Config struct {
	Codec   CodecConfig   `json:"codec"`
	Session SessionConfig `json:"session"`
	Models  ModelsConfig  `json:"models"`
	Dataset DatasetConfig `json:"dataset"`
	Output  OutputConfig  `json:"output"`
}

// CodecConfig holds the token coordinate space settings. Encode and
// decode must agree on quantization; Validate treats a mismatch-prone
// value as a configuration error up front.
type CodecConfig struct {
	Quantization int `json:"quantization"`
}

// SessionConfig holds the live triage pipeline parameters. CropFraction
// and CropSize are the contract the classifier and diagnosis models
// were prepared with; changing one without retraining breaks both.
type SessionConfig struct {
	DetectPadSize int     `json:"detect_pad_size"`
	CropFraction  float64 `json:"crop_fraction"`
	CropSize      int     `json:"crop_size"`
}

// ModelsConfig names the collaborator models and their server.
type ModelsConfig struct {
	ServerURL     string `json:"server_url"`
	DetectModel   string `json:"detect_model"`
	ClassifyModel string `json:"classify_model"`
	DiagnoseModel string `json:"diagnose_model"`
}

// DatasetConfig holds the offline conversion parameters.
type DatasetConfig struct {
	ImageBase           string  `json:"image_base"`
	TreatmentMultiplier float64 `json:"treatment_multiplier"`
	CropSize            int     `json:"crop_size"`
	JPEGQuality         int     `json:"jpeg_quality"`
}

// OutputConfig holds output generation settings.
type OutputConfig struct {
	Dir     string `json:"dir"`
	Format  string `json:"format"`
	Quality int    `json:"quality"`
}

// Default returns a configuration matching the parameters the shipped
// models were trained with.
func Default() *Config {
	return &Config{
		Codec: CodecConfig{Quantization: 1024},
		Session: SessionConfig{
			DetectPadSize: 1024,
			CropFraction:  0.2,
			CropSize:      448,
		},
		Models: ModelsConfig{
			ServerURL:     "http://localhost:11434",
			DetectModel:   "dental-detect",
			ClassifyModel: "dental-treatment",
			DiagnoseModel: "dental-diagnosis",
		},
		Dataset: DatasetConfig{
			ImageBase:           "dataset_all",
			TreatmentMultiplier: 1.2,
			CropSize:            448,
			JPEGQuality:         95,
		},
		Output: OutputConfig{
			Dir:     "./output",
			Format:  "jpg",
			Quality: 90,
		},
	}
}

// LoadFromFile loads configuration from a JSON file.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// SaveToFile saves configuration to a JSON file.
func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Codec.Quantization < 2 || c.Codec.Quantization > 10000 {
		return fmt.Errorf("codec.quantization must be between 2 and 10000")
	}

	if c.Session.DetectPadSize < 1 {
		return fmt.Errorf("session.detect_pad_size must be positive")
	}

	if c.Session.CropFraction < 0 || c.Session.CropFraction > 1 {
		return fmt.Errorf("session.crop_fraction must be between 0 and 1")
	}

	if c.Session.CropSize < 1 {
		return fmt.Errorf("session.crop_size must be positive")
	}

	if c.Dataset.TreatmentMultiplier < 1 {
		return fmt.Errorf("dataset.treatment_multiplier must be at least 1")
	}

	if c.Dataset.JPEGQuality < 1 || c.Dataset.JPEGQuality > 100 {
		return fmt.Errorf("dataset.jpeg_quality must be between 1 and 100")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path.
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "dental-triage", "config.json")
}
