package commands

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// DatasetConfig describes a training dataset in the run's yaml config.
type DatasetConfig struct {
	Folder           string  `yaml:"folder"`
	SampleRate       int     `yaml:"sample_rate"`
	SeqLenMultipleOf int     `yaml:"seq_len_multiple_of"`
	MaxLength        int     `yaml:"max_length"`
	BatchSize        int     `yaml:"batch_size"`
	ValidFrac        float64 `yaml:"valid_frac"`
	Seed             int64   `yaml:"seed"`
}

func loadDatasetConfig(path string) (*DatasetConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &DatasetConfig{
		SampleRate: 16000,
		BatchSize:  4,
		Seed:       42,
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Folder == "" {
		return nil, fmt.Errorf("config %s: folder is required", path)
	}
	if cfg.MaxLength <= 0 {
		return nil, fmt.Errorf("config %s: max_length is required", path)
	}
	return cfg, nil
}
