// Package harness is the execution surface the trainer delegates to for
// backward passes, gradient clipping and experiment tracking.
//
// This implementation is single-process and CPU-bound: Prepare is an
// identity registration and IsMain always reports true. Trainers still
// route every side effect through the harness so the process topology can
// change without touching training logic.
package harness

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chorale-ml/chorale/internal/nn"
	"github.com/chorale-ml/chorale/internal/tensor"
)

const clipEps = 1e-6

// Harness drives gradient flow and metric emission for one training run.
type Harness[B tensor.Backend] struct {
	logger *zap.Logger
	runID  string

	trackerName string
	tracking    bool
}

// New creates a harness with a fresh run ID. A nil logger disables
// structured output.
func New[B tensor.Backend](logger *zap.Logger) *Harness[B] {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	return &Harness[B]{
		logger: logger.With(zap.String("run_id", runID)),
		runID:  runID,
	}
}

// RunID returns the unique identifier of this run. It is stamped into
// checkpoint metadata so artifacts can be traced back to the run that
// produced them.
func (h *Harness[B]) RunID() string {
	return h.runID
}

// IsMain reports whether this process should perform side effects such as
// validation, checkpointing and logging.
func (h *Harness[B]) IsMain() bool {
	return true
}

// Prepare registers training objects with the harness. On a single CPU
// process there is no device placement to do; the call exists so trainers
// are written against the distributed surface.
func (h *Harness[B]) Prepare(objs ...any) {
	h.logger.Debug("prepared training objects", zap.Int("count", len(objs)))
}

// Backward runs the loss's backward pass with the given accumulation
// scale, writing scaled gradients into the model's parameters.
func (h *Harness[B]) Backward(loss *nn.Loss, scale float64) error {
	return loss.Backward(scale)
}

// ClipGradNorm rescales gradients so their global L2 norm does not exceed
// maxNorm. It returns the norm measured before clipping. Parameters
// without an accumulated gradient are skipped.
func (h *Harness[B]) ClipGradNorm(params []*nn.Parameter[B], maxNorm float64) (float64, error) {
	if maxNorm <= 0 {
		return 0, fmt.Errorf("max gradient norm must be positive, got %g", maxNorm)
	}

	var sumSq float64
	for _, p := range params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		for _, g := range grad.Data() {
			sumSq += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sumSq)

	if norm > maxNorm {
		factor := float32(maxNorm / (norm + clipEps))
		for _, p := range params {
			grad := p.Grad()
			if grad == nil {
				continue
			}
			data := grad.Data()
			for i := range data {
				data[i] *= factor
			}
		}
	}
	return norm, nil
}

// Print writes a progress line to stdout, gated on the main process.
func (h *Harness[B]) Print(args ...any) {
	if h.IsMain() {
		fmt.Fprintln(os.Stdout, args...)
	}
}

// Printf writes a formatted progress line to stdout, gated on the main
// process.
func (h *Harness[B]) Printf(format string, args ...any) {
	if h.IsMain() {
		fmt.Fprintf(os.Stdout, format+"\n", args...)
	}
}

// InitTrackers starts metric tracking under the given experiment name.
func (h *Harness[B]) InitTrackers(name string, hparams map[string]any) {
	h.trackerName = name
	h.tracking = true

	fields := []zap.Field{zap.String("experiment", name)}
	for _, k := range sortedKeys(hparams) {
		fields = append(fields, zap.Any(k, hparams[k]))
	}
	h.logger.Info("trackers initialized", fields...)
}

// Log emits a metrics map for a training step. Metrics logged before
// InitTrackers are dropped, matching tracker semantics.
func (h *Harness[B]) Log(metrics map[string]float64, step int64) {
	if !h.tracking {
		return
	}

	fields := []zap.Field{
		zap.String("experiment", h.trackerName),
		zap.Int64("step", step),
	}
	for _, k := range sortedKeys(metrics) {
		fields = append(fields, zap.Float64(k, metrics[k]))
	}
	h.logger.Info("metrics", fields...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
