// Copyright 2025 Chorale ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package stage exposes the stage enumeration and the collaborator
// interfaces stage transformers and their auxiliary models implement.
package stage

import (
	"github.com/chorale-ml/chorale/internal/stage"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Stage identifies which transformer of the cascade is being trained.
type Stage = stage.Stage

// The three training stages.
const (
	Semantic = stage.Semantic
	Coarse   = stage.Coarse
	Fine     = stage.Fine
)

// ParseStage maps a stage name to its enum value.
func ParseStage(name string) (Stage, error) {
	return stage.ParseStage(name)
}

// Wav2Vec extracts coarse semantic tokens from raw waveforms.
type Wav2Vec = stage.Wav2Vec

// NeuralCodec encodes waveforms into quantized acoustic tokens.
type NeuralCodec = stage.NeuralCodec

// AudioConditioner embeds audio into the shared conditioning space.
type AudioConditioner = stage.AudioConditioner

// Transformer is the trainable model of a stage.
type Transformer[B tensor.Backend] = stage.Transformer[B]

// Wrapper is the uniform loss/generate surface over a stage transformer
// plus its auxiliary models.
type Wrapper[B tensor.Backend] = stage.Wrapper[B]

// Aux bundles the frozen auxiliary models a stage wrapper may need.
type Aux = stage.Aux

// NewWrapper builds the wrapper for a stage, validating that every
// auxiliary model the stage requires is present.
func NewWrapper[B tensor.Backend](s Stage, tr Transformer[B], aux Aux) (Wrapper[B], error) {
	return stage.NewWrapper(s, tr, aux)
}
