package serialization

import (
	"time"

	"github.com/chorale-ml/chorale/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "CHOR"
	FormatVersion   = 1
	HeaderAlignment = 64   // Align tensor data to 64 bytes
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
	MaxHeaderSize   = 100 * 1024 * 1024
)

// Flags for the checkpoint container.
const (
	FlagHasOptimizer uint32 = 1 << 0 // optimizer state included
	FlagHasMetadata  uint32 = 1 << 1 // custom metadata included
)

// Header represents the JSON header in a checkpoint file.
type Header struct {
	FormatVersion  int               `json:"format_version"`
	ModelType      string            `json:"model_type"`
	CreatedAt      time.Time         `json:"created_at"`
	Tensors        []TensorMeta      `json:"tensors"`
	Metadata       map[string]string `json:"metadata"`
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta carries training state next to the tensor payload.
type CheckpointMeta struct {
	IsCheckpoint    bool           `json:"is_checkpoint"`
	Stage           string         `json:"stage"`            // semantic, coarse or fine
	Step            int64          `json:"step"`             // training step the snapshot was taken at
	Loss            float64        `json:"loss"`             // accumulated loss at that step
	OptimizerType   string         `json:"optimizer_type"`   // "Adam", "SGD", ...
	OptimizerConfig map[string]any `json:"optimizer_config"` // optimizer hyperparameters
	RunID           string         `json:"run_id"`           // harness run identity
	TrainingMeta    map[string]any `json:"training_meta"`    // additional training metadata
}

// TensorMeta describes a tensor in the checkpoint file.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // Offset from start of tensor data section
	Size   int64  `json:"size"`   // Size in bytes
}

// Data type string constants for serialization.
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
	DTypeInt32   = "int32"
	DTypeInt64   = "int64"
	DTypeUint8   = "uint8"
)

// dtypeToString converts tensor.DataType to its string representation.
func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Float64:
		return DTypeFloat64
	case tensor.Int32:
		return DTypeInt32
	case tensor.Int64:
		return DTypeInt64
	case tensor.Uint8:
		return DTypeUint8
	default:
		return "unknown"
	}
}

// stringToDtype converts a string representation to tensor.DataType.
func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	case DTypeInt32:
		return tensor.Int32, true
	case DTypeInt64:
		return tensor.Int64, true
	case DTypeUint8:
		return tensor.Uint8, true
	default:
		return 0, false
	}
}
