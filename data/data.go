// Copyright 2025 Chorale ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package data exposes the sound dataset and batch loader.
package data

import "github.com/chorale-ml/chorale/internal/data"

// Dataset is an indexable, length-reporting collection of sample tuples.
type Dataset = data.Dataset

// SoundConfig configures a SoundDataset.
type SoundConfig = data.SoundConfig

// SoundDataset lazily decodes audio files from a folder.
type SoundDataset = data.SoundDataset

// NewSoundDataset scans folder recursively for .wav files.
func NewSoundDataset(folder string, cfg SoundConfig) (*SoundDataset, error) {
	return data.NewSoundDataset(folder, cfg)
}

// Subset is a view over a base dataset restricted to a fixed index list.
type Subset = data.Subset

// RandomSplit deterministically partitions ds into train and validation
// subsets.
func RandomSplit(ds Dataset, validFrac float64, seed int64) (train, valid *Subset, err error) {
	return data.RandomSplit(ds, validFrac, seed)
}

// Loader draws fixed-size batches from a dataset, cycling forever.
type Loader = data.Loader

// NewLoader builds a cycling loader over ds.
func NewLoader(ds Dataset, batchSize int, shuffle bool, seed int64) (*Loader, error) {
	return data.NewLoader(ds, batchSize, shuffle, seed)
}
