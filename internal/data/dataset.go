// Package data implements the sound dataset and the shuffled, infinitely
// cycling batch loaders that feed the stage trainers.
package data

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chorale-ml/chorale/internal/tensor"
)

// Dataset is an indexable, length-reporting collection of samples.
//
// Each sample is a positional tuple of tensors; the trainer routes tuple
// positions to stage-wrapper keyword arguments by type.
type Dataset interface {
	// Len returns the number of samples.
	Len() int

	// At returns the sample tuple at index i.
	At(i int) ([]*tensor.RawTensor, error)
}

// SoundConfig configures a SoundDataset.
type SoundConfig struct {
	// MaxLength is the sample length ceiling, in frames at the target rate.
	MaxLength int

	// TargetSampleRate is the rate the feature extractor expects.
	TargetSampleRate int

	// SeqLenMultipleOf aligns sample lengths to the feature extractor's
	// downsampling factor. Zero means no alignment requirement.
	SeqLenMultipleOf int
}

// SoundDataset lazily decodes audio files from a folder.
//
// Every sample is decoded to mono, resampled to the target rate, and
// truncated or zero-padded to a fixed length (MaxLength rounded down to the
// alignment multiple) so batches stack cleanly. Samples are single-element
// tuples: a float32 waveform tensor of shape [length].
type SoundDataset struct {
	files  []string
	cfg    SoundConfig
	length int // normalized frame count per sample
}

// NewSoundDataset scans folder recursively for .wav files.
func NewSoundDataset(folder string, cfg SoundConfig) (*SoundDataset, error) {
	if cfg.TargetSampleRate <= 0 {
		return nil, fmt.Errorf("target sample rate must be positive, got %d", cfg.TargetSampleRate)
	}
	if cfg.MaxLength <= 0 {
		return nil, fmt.Errorf("max length must be positive, got %d", cfg.MaxLength)
	}
	if cfg.SeqLenMultipleOf < 0 {
		return nil, fmt.Errorf("seq len multiple must not be negative, got %d", cfg.SeqLenMultipleOf)
	}

	length := cfg.MaxLength
	if cfg.SeqLenMultipleOf > 1 {
		length = roundDownNearestMultiple(length, cfg.SeqLenMultipleOf)
	}
	if length == 0 {
		return nil, fmt.Errorf("max length %d is shorter than seq len multiple %d", cfg.MaxLength, cfg.SeqLenMultipleOf)
	}

	var files []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".wav") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan folder %s: %w", folder, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no audio files found under %s", folder)
	}
	sort.Strings(files)

	return &SoundDataset{files: files, cfg: cfg, length: length}, nil
}

// Len returns the number of audio files.
func (d *SoundDataset) Len() int {
	return len(d.files)
}

// SampleLength returns the normalized per-sample frame count.
func (d *SoundDataset) SampleLength() int {
	return d.length
}

// At decodes, resamples and length-normalizes the i-th file.
func (d *SoundDataset) At(i int) ([]*tensor.RawTensor, error) {
	if i < 0 || i >= len(d.files) {
		return nil, fmt.Errorf("sample index %d out of range [0, %d)", i, len(d.files))
	}

	samples, sampleRate, err := decodeWAV(d.files[i])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", d.files[i], err)
	}

	if sampleRate != d.cfg.TargetSampleRate {
		samples, err = resample(samples, sampleRate, d.cfg.TargetSampleRate)
		if err != nil {
			return nil, fmt.Errorf("resample %s: %w", d.files[i], err)
		}
	}

	raw, err := tensor.NewRaw(tensor.Shape{d.length}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	// Truncate long clips; short clips keep their zero tail.
	copy(raw.AsFloat32(), samples)

	return []*tensor.RawTensor{raw}, nil
}

// roundDownNearestMultiple rounds n down to the nearest multiple of m.
func roundDownNearestMultiple(n, m int) int {
	return n / m * m
}
