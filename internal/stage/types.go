// Package stage binds a token transformer to the frozen auxiliary models
// that feed it tokens and conditioning for one training stage.
package stage

import (
	"github.com/chorale-ml/chorale/internal/nn"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Wav2Vec extracts coarse semantic tokens from raw waveforms.
//
// Implementations are frozen feature extractors; the trainer never updates
// them and uses the rate accessors to size the dataset.
type Wav2Vec interface {
	// TargetSampleRate is the rate the extractor expects input audio at.
	TargetSampleRate() int

	// SeqLenMultipleOf is the extractor's downsampling factor. Dataset
	// sample lengths must be a multiple of it.
	SeqLenMultipleOf() int

	// Tokenize maps a [batch, length] waveform to semantic token ids.
	Tokenize(wave *tensor.RawTensor) (*tensor.RawTensor, error)
}

// NeuralCodec encodes waveforms into quantized acoustic tokens and decodes
// them back to audio.
type NeuralCodec interface {
	TargetSampleRate() int

	// Encode maps a [batch, length] waveform to acoustic token ids.
	Encode(wave *tensor.RawTensor) (*tensor.RawTensor, error)

	// Decode reconstructs audio from acoustic token ids.
	Decode(tokens *tensor.RawTensor) (*tensor.RawTensor, error)
}

// AudioConditioner embeds audio into the conditioning space shared by all
// stage transformers.
type AudioConditioner interface {
	// Embed maps a [batch, length] waveform to conditioning embeddings.
	Embed(wave *tensor.RawTensor) (*tensor.RawTensor, error)
}

// Transformer is the trainable model of a stage.
//
// ForwardLoss consumes the keyword tensors its wrapper prepares
// (conditioning plus stage-specific token streams) and returns the training
// loss with gradients attached to the module's parameters.
type Transformer[B tensor.Backend] interface {
	nn.Module[B]

	ForwardLoss(kwargs map[string]*tensor.RawTensor) (*nn.Loss, error)

	// Generate autoregressively samples this stage's output tokens.
	Generate(kwargs map[string]*tensor.RawTensor) (*tensor.RawTensor, error)
}

// Wrapper is the uniform surface the trainer drives, independent of which
// stage it trains.
type Wrapper[B tensor.Backend] interface {
	// Forward runs a training or validation pass on a batch keyword map.
	// With returnLoss false the result carries the loss value only, with
	// no gradient flow.
	Forward(kwargs map[string]*tensor.RawTensor, returnLoss bool) (*nn.Loss, error)

	// Generate samples output tokens conditioned on the batch keywords.
	Generate(kwargs map[string]*tensor.RawTensor) (*tensor.RawTensor, error)

	// Train and Eval switch the underlying transformer's mode. Auxiliary
	// models stay frozen in either mode.
	Train()
	Eval()

	// Transformer exposes the trainable module for checkpointing and
	// optimizer construction.
	Transformer() Transformer[B]
}
