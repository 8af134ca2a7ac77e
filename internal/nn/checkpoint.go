package nn

import (
	"fmt"
	"strings"

	"github.com/chorale-ml/chorale/internal/serialization"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// optimizerPrefix namespaces optimizer state inside the combined state dict.
const optimizerPrefix = "optimizer."

// OptimizerState is the optimizer surface the checkpoint layer needs.
//
// Optimizers from the optim package implement this interface; it is declared
// here to avoid an import cycle.
type OptimizerState interface {
	// StateDict returns the optimizer state for serialization.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict loads optimizer state from serialization.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// Name returns the optimizer type name ("Adam", "SGD").
	Name() string

	// GetLR returns the current learning rate.
	GetLR() float32
}

// Checkpoint is a complete training state snapshot: model parameters,
// optimizer state and training metadata in one file. The same record serves
// the periodic step snapshots and explicit saves, so any checkpoint is a
// valid resume point.
type Checkpoint[B tensor.Backend] struct {
	Model     Module[B]
	Optimizer OptimizerState
	Stage     string
	Step      int64
	Loss      float64
	RunID     string
	Metadata  map[string]any
}

// Save writes the checkpoint to path.
func (c *Checkpoint[B]) Save(path string) error {
	combined := make(map[string]*tensor.RawTensor)
	for name, raw := range c.Model.StateDict() {
		combined[name] = raw
	}
	for name, raw := range c.Optimizer.StateDict() {
		combined[optimizerPrefix+name] = raw
	}

	writer, err := serialization.NewWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}

	header := serialization.Header{
		ModelType: "Checkpoint",
		Metadata:  make(map[string]string),
		CheckpointMeta: &serialization.CheckpointMeta{
			IsCheckpoint:  true,
			Stage:         c.Stage,
			Step:          c.Step,
			Loss:          c.Loss,
			OptimizerType: c.Optimizer.Name(),
			OptimizerConfig: map[string]any{
				"lr": c.Optimizer.GetLR(),
			},
			RunID:        c.RunID,
			TrainingMeta: c.Metadata,
		},
	}

	if err := writer.WriteStateDict(combined, header); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	return writer.Close()
}

// LoadCheckpoint restores model parameters and optimizer state from path.
//
// The model and optimizer must be pre-constructed with the same architecture
// and configuration as when the checkpoint was saved.
func LoadCheckpoint[B tensor.Backend](path string, model Module[B], optimizer OptimizerState) (*Checkpoint[B], error) {
	reader, err := serialization.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Close()

	header := reader.Header()
	if header.CheckpointMeta == nil || !header.CheckpointMeta.IsCheckpoint {
		return nil, fmt.Errorf("file %s is not a checkpoint", path)
	}

	stateDict, err := reader.ReadStateDict()
	if err != nil {
		return nil, fmt.Errorf("failed to read state dict: %w", err)
	}

	modelState := make(map[string]*tensor.RawTensor)
	optimizerState := make(map[string]*tensor.RawTensor)
	for name, raw := range stateDict {
		if rest, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			optimizerState[rest] = raw
		} else {
			modelState[name] = raw
		}
	}

	if err := model.LoadStateDict(modelState); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	if err := optimizer.LoadStateDict(optimizerState); err != nil {
		return nil, fmt.Errorf("failed to load optimizer state: %w", err)
	}

	return &Checkpoint[B]{
		Model:     model,
		Optimizer: optimizer,
		Stage:     header.CheckpointMeta.Stage,
		Step:      header.CheckpointMeta.Step,
		Loss:      header.CheckpointMeta.Loss,
		RunID:     header.CheckpointMeta.RunID,
		Metadata:  header.CheckpointMeta.TrainingMeta,
	}, nil
}
