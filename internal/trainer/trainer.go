// Package trainer drives single-stage training of the transformer cascade:
// gradient-accumulated optimization steps with periodic validation and
// step-numbered checkpoints.
package trainer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chorale-ml/chorale/internal/data"
	"github.com/chorale-ml/chorale/internal/harness"
	"github.com/chorale-ml/chorale/internal/nn"
	"github.com/chorale-ml/chorale/internal/optim"
	"github.com/chorale-ml/chorale/internal/stage"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Config holds the training hyperparameters and run layout.
//
// DefaultConfig fills the conventional values; a zero ValidFrac is
// meaningful (train and validation share the full dataset) and is never
// defaulted away.
type Config struct {
	NumTrainSteps  int
	BatchSize      int
	GradAccumEvery int

	LR          float32
	WeightDecay float32

	// MaxGradNorm caps the global gradient norm before each optimizer
	// step. Zero disables clipping.
	MaxGradNorm float64

	// Folder is scanned for audio files when no dataset is injected.
	Folder string

	// DataMaxLength is the per-sample length ceiling in frames at the
	// stage's target sample rate. Required when the dataset is built
	// from Folder.
	DataMaxLength int

	ValidFrac       float64
	RandomSplitSeed int64

	SaveResultsEvery int64
	SaveModelEvery   int64
	ResultsFolder    string

	// ForceClearResults removes prior artifacts from the results folder
	// during construction. When false, existing artifacts are kept.
	ForceClearResults bool
}

// DefaultConfig returns the conventional training configuration.
func DefaultConfig() Config {
	return Config{
		GradAccumEvery:   4,
		LR:               3e-4,
		ValidFrac:        0.05,
		RandomSplitSeed:  42,
		SaveResultsEvery: 100,
		SaveModelEvery:   1000,
		ResultsFolder:    "./results",
	}
}

// Deps are the collaborators a trainer is wired with. Transformer is
// required; the auxiliary models must cover the stage's needs. Dataset,
// Harness and Optimizer are built from Config when nil.
type Deps[B tensor.Backend] struct {
	Transformer stage.Transformer[B]
	Wav2Vec     stage.Wav2Vec
	Codec       stage.NeuralCodec
	Conditioner stage.AudioConditioner

	Dataset   data.Dataset
	Harness   *harness.Harness[B]
	Optimizer optim.Optimizer
}

// SingleStageTrainer owns one optimization loop: a stage wrapper, an
// optimizer, a pair of cycling data loaders and a step counter. It is a
// single-consumer object; no method may be called concurrently.
type SingleStageTrainer[B tensor.Backend] struct {
	stage   stage.Stage
	wrapper stage.Wrapper[B]
	h       *harness.Harness[B]
	opt     optim.Optimizer
	cfg     Config

	trainLoader *data.Loader
	validLoader *data.Loader

	rules  []fieldRule
	fields *fieldMapping

	step     int64
	lastLoss float64
}

// New constructs a trainer for the named stage.
//
// Stage preconditions are checked before any dataset work: an invalid
// stage name or a missing required auxiliary model fails without touching
// the filesystem.
func New[B tensor.Backend](stageName string, deps Deps[B], cfg Config) (*SingleStageTrainer[B], error) {
	s, err := stage.ParseStage(stageName)
	if err != nil {
		return nil, err
	}

	wrapper, err := stage.NewWrapper(s, deps.Transformer, stage.Aux{
		Wav2Vec:     deps.Wav2Vec,
		Codec:       deps.Codec,
		Conditioner: deps.Conditioner,
	})
	if err != nil {
		return nil, fmt.Errorf("%s stage: %w", s, err)
	}

	if cfg.NumTrainSteps <= 0 {
		return nil, fmt.Errorf("num train steps must be positive, got %d", cfg.NumTrainSteps)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.GradAccumEvery <= 0 {
		return nil, fmt.Errorf("grad accum every must be positive, got %d", cfg.GradAccumEvery)
	}
	if cfg.SaveResultsEvery <= 0 {
		return nil, fmt.Errorf("save results every must be positive, got %d", cfg.SaveResultsEvery)
	}
	if cfg.SaveModelEvery <= 0 {
		return nil, fmt.Errorf("save model every must be positive, got %d", cfg.SaveModelEvery)
	}
	if cfg.ResultsFolder == "" {
		return nil, fmt.Errorf("results folder is required")
	}

	ds := deps.Dataset
	if ds == nil {
		if cfg.Folder == "" {
			return nil, fmt.Errorf("either a dataset or a folder is required")
		}
		soundCfg, err := soundConfigFor(s, deps, cfg)
		if err != nil {
			return nil, err
		}
		ds, err = data.NewSoundDataset(cfg.Folder, soundCfg)
		if err != nil {
			return nil, err
		}
	}

	var trainDS, validDS data.Dataset
	if cfg.ValidFrac > 0 {
		train, valid, err := data.RandomSplit(ds, cfg.ValidFrac, cfg.RandomSplitSeed)
		if err != nil {
			return nil, err
		}
		trainDS, validDS = train, valid
	} else {
		// Shared partition: validation draws from the same samples the
		// model trains on.
		trainDS, validDS = ds, ds
	}

	trainLoader, err := data.NewLoader(trainDS, cfg.BatchSize, true, cfg.RandomSplitSeed)
	if err != nil {
		return nil, fmt.Errorf("train loader: %w", err)
	}
	validLoader, err := data.NewLoader(validDS, cfg.BatchSize, true, cfg.RandomSplitSeed+1)
	if err != nil {
		return nil, fmt.Errorf("valid loader: %w", err)
	}

	opt := deps.Optimizer
	if opt == nil {
		opt = optim.NewAdam(deps.Transformer.Parameters(), optim.AdamConfig{
			LR:          cfg.LR,
			WeightDecay: cfg.WeightDecay,
		})
	}

	h := deps.Harness
	if h == nil {
		h = harness.New[B](nil)
	}

	if err := prepareResultsFolder(cfg.ResultsFolder, cfg.ForceClearResults); err != nil {
		return nil, err
	}

	t := &SingleStageTrainer[B]{
		stage:       s,
		wrapper:     wrapper,
		h:           h,
		opt:         opt,
		cfg:         cfg,
		trainLoader: trainLoader,
		validLoader: validLoader,
		rules:       batchFieldRules,
	}

	h.Prepare(wrapper, opt, trainLoader, validLoader)
	h.InitTrackers(s.String()+"_stage", map[string]any{
		"num_train_steps":  cfg.NumTrainSteps,
		"batch_size":       cfg.BatchSize,
		"grad_accum_every": cfg.GradAccumEvery,
		"learning_rate":    opt.GetLR(),
	})
	return t, nil
}

// soundConfigFor derives dataset parameters from the stage's auxiliary
// models: the feature extractor dictates sample rate and alignment; stages
// without one fall back to the codec's rate.
func soundConfigFor[B tensor.Backend](s stage.Stage, deps Deps[B], cfg Config) (data.SoundConfig, error) {
	if cfg.DataMaxLength <= 0 {
		return data.SoundConfig{}, fmt.Errorf("data max length is required to build a dataset from a folder")
	}
	sc := data.SoundConfig{MaxLength: cfg.DataMaxLength}
	switch {
	case deps.Wav2Vec != nil:
		sc.TargetSampleRate = deps.Wav2Vec.TargetSampleRate()
		sc.SeqLenMultipleOf = deps.Wav2Vec.SeqLenMultipleOf()
	case deps.Codec != nil:
		sc.TargetSampleRate = deps.Codec.TargetSampleRate()
	default:
		return data.SoundConfig{}, fmt.Errorf("%s stage has no auxiliary model to derive a sample rate from", s)
	}
	return sc, nil
}

// prepareResultsFolder creates the checkpoint/results directory, clearing
// prior artifacts only when explicitly forced.
func prepareResultsFolder(folder string, forceClear bool) error {
	if forceClear {
		entries, err := os.ReadDir(folder)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to inspect results folder %s: %w", folder, err)
		}
		if len(entries) > 0 {
			if err := os.RemoveAll(folder); err != nil {
				return fmt.Errorf("failed to clear results folder %s: %w", folder, err)
			}
		}
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("failed to create results folder %s: %w", folder, err)
	}
	return nil
}

// Step returns the number of completed optimization steps.
func (t *SingleStageTrainer[B]) Step() int64 {
	return t.step
}

// Stage returns the stage this trainer drives.
func (t *SingleStageTrainer[B]) Stage() stage.Stage {
	return t.stage
}

// mapBatch converts a positional batch to wrapper keyword arguments,
// inferring the field mapping from the first batch and reusing it for the
// rest of the session.
func (t *SingleStageTrainer[B]) mapBatch(batch []*tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	if t.fields == nil {
		fields, err := inferFieldMapping(batch, t.rules)
		if err != nil {
			return nil, err
		}
		t.fields = fields
	}
	return t.fields.apply(batch)
}

// TrainStep runs one optimization step: the gradient-accumulation loop,
// optional clipping, the optimizer update, metric emission and the
// periodic validation and checkpoint side effects. It returns the step's
// accumulated log map.
func (t *SingleStageTrainer[B]) TrainStep() (map[string]float64, error) {
	t.wrapper.Train()

	logs := make(map[string]float64)
	scale := 1.0 / float64(t.cfg.GradAccumEvery)

	for i := 0; i < t.cfg.GradAccumEvery; i++ {
		batch, err := t.trainLoader.Next()
		if err != nil {
			return nil, fmt.Errorf("train batch: %w", err)
		}
		kwargs, err := t.mapBatch(batch)
		if err != nil {
			return nil, err
		}
		loss, err := t.wrapper.Forward(kwargs, true)
		if err != nil {
			return nil, fmt.Errorf("forward: %w", err)
		}
		if err := t.h.Backward(loss, scale); err != nil {
			return nil, fmt.Errorf("backward: %w", err)
		}
		logs = accumLog(logs, map[string]float64{"loss": loss.Item() * scale})
	}

	if t.cfg.MaxGradNorm > 0 {
		if _, err := t.h.ClipGradNorm(t.wrapper.Transformer().Parameters(), t.cfg.MaxGradNorm); err != nil {
			return nil, err
		}
	}

	t.opt.Step()
	t.opt.ZeroGrad()
	t.lastLoss = logs["loss"]

	t.h.Printf("%d: loss: %v", t.step, logs["loss"])
	t.h.Log(map[string]float64{"train_loss": logs["loss"]}, t.step)

	if t.h.IsMain() && t.step%t.cfg.SaveResultsEvery == 0 {
		validLoss, err := t.validStep()
		if err != nil {
			return nil, err
		}
		logs = accumLog(logs, map[string]float64{"valid_loss": validLoss})
		t.h.Printf("%d: valid loss %v", t.step, validLoss)
		t.h.Log(map[string]float64{"valid_loss": validLoss}, t.step)
	}

	if t.h.IsMain() && t.step%t.cfg.SaveModelEvery == 0 {
		path := filepath.Join(t.cfg.ResultsFolder, fmt.Sprintf("%s.transformer.%d.pt", t.stage, t.step))
		// The snapshot's weights already include this step's update, so
		// a resumed run continues from the next step.
		if err := t.saveCheckpoint(path, t.step+1); err != nil {
			return nil, err
		}
	}

	t.step++
	return logs, nil
}

// validStep evaluates one validation batch with gradient tracking
// disabled.
func (t *SingleStageTrainer[B]) validStep() (float64, error) {
	t.wrapper.Eval()
	defer t.wrapper.Train()

	batch, err := t.validLoader.Next()
	if err != nil {
		return 0, fmt.Errorf("valid batch: %w", err)
	}
	kwargs, err := t.mapBatch(batch)
	if err != nil {
		return 0, err
	}
	loss, err := t.wrapper.Forward(kwargs, false)
	if err != nil {
		return 0, fmt.Errorf("valid forward: %w", err)
	}
	return loss.Item(), nil
}

// Train runs the loop until the configured step count, invoking logFn
// with each step's log map. A nil logFn is a no-op.
func (t *SingleStageTrainer[B]) Train(logFn func(map[string]float64)) error {
	for t.step < int64(t.cfg.NumTrainSteps) {
		logs, err := t.TrainStep()
		if err != nil {
			return err
		}
		if logFn != nil {
			logFn(logs)
		}
	}
	t.h.Print("training complete")
	return nil
}

// Save writes the unified checkpoint (model parameters plus optimizer
// state) to path. The periodic step snapshots and explicit saves share
// this format, so any checkpoint is a valid resume point.
func (t *SingleStageTrainer[B]) Save(path string) error {
	return t.saveCheckpoint(path, t.step)
}

func (t *SingleStageTrainer[B]) saveCheckpoint(path string, step int64) error {
	ckpt := &nn.Checkpoint[B]{
		Model:     t.wrapper.Transformer(),
		Optimizer: t.opt,
		Stage:     t.stage.String(),
		Step:      step,
		Loss:      t.lastLoss,
		RunID:     t.h.RunID(),
	}
	return ckpt.Save(path)
}

// Load restores model and optimizer state from a checkpoint. The path
// must exist. The step counter resumes from the checkpoint's step.
func (t *SingleStageTrainer[B]) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("checkpoint %s does not exist: %w", path, err)
	}
	ckpt, err := nn.LoadCheckpoint(path, t.wrapper.Transformer(), t.opt)
	if err != nil {
		return err
	}
	t.step = ckpt.Step
	return nil
}

// Generate samples output tokens from the stage wrapper.
func (t *SingleStageTrainer[B]) Generate(kwargs map[string]*tensor.RawTensor) (*tensor.RawTensor, error) {
	t.wrapper.Eval()
	return t.wrapper.Generate(kwargs)
}
