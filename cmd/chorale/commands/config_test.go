package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDatasetConfig(t *testing.T) {
	path := writeConfig(t, `
folder: ./audio
sample_rate: 24000
seq_len_multiple_of: 320
max_length: 16000
batch_size: 8
valid_frac: 0.1
seed: 7
`)

	cfg, err := loadDatasetConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "./audio", cfg.Folder)
	assert.Equal(t, 24000, cfg.SampleRate)
	assert.Equal(t, 320, cfg.SeqLenMultipleOf)
	assert.Equal(t, 16000, cfg.MaxLength)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.InDelta(t, 0.1, cfg.ValidFrac, 1e-9)
	assert.Equal(t, int64(7), cfg.Seed)
}

func TestLoadDatasetConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
folder: ./audio
max_length: 8000
`)

	cfg, err := loadDatasetConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, 4, cfg.BatchSize)
	assert.Equal(t, int64(42), cfg.Seed)
}

func TestLoadDatasetConfigValidation(t *testing.T) {
	_, err := loadDatasetConfig(writeConfig(t, "max_length: 100\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "folder is required")

	_, err = loadDatasetConfig(writeConfig(t, "folder: ./audio\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_length")

	_, err = loadDatasetConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
