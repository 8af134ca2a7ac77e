// Copyright 2025 Chorale ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package trainer exposes the single-stage training loop.
package trainer

import (
	"github.com/chorale-ml/chorale/internal/tensor"
	"github.com/chorale-ml/chorale/internal/trainer"
)

// Config holds the training hyperparameters and run layout.
type Config = trainer.Config

// DefaultConfig returns the conventional training configuration.
func DefaultConfig() Config {
	return trainer.DefaultConfig()
}

// Deps are the collaborators a trainer is wired with.
type Deps[B tensor.Backend] = trainer.Deps[B]

// SingleStageTrainer drives gradient-accumulated optimization steps with
// periodic validation and step-numbered checkpoints for one stage of the
// transformer cascade.
type SingleStageTrainer[B tensor.Backend] = trainer.SingleStageTrainer[B]

// New constructs a trainer for the named stage: "semantic", "coarse" or
// "fine".
//
// Example:
//
//	cfg := trainer.DefaultConfig()
//	cfg.NumTrainSteps = 10000
//	cfg.BatchSize = 4
//	cfg.GradAccumEvery = 8
//	cfg.Folder = "./audio"
//	cfg.DataMaxLength = 320 * 32
//
//	t, err := trainer.New("semantic", trainer.Deps[*cpu.CPUBackend]{
//	    Transformer: model,
//	    Wav2Vec:     wav2vec,
//	    Conditioner: conditioner,
//	}, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = t.Train(nil)
func New[B tensor.Backend](stageName string, deps Deps[B], cfg Config) (*SingleStageTrainer[B], error) {
	return trainer.New(stageName, deps, cfg)
}
