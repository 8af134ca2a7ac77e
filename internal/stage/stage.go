package stage

import (
	"fmt"

	"github.com/chorale-ml/chorale/internal/nn"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Stage identifies which transformer of the cascade is being trained.
type Stage int

const (
	Semantic Stage = iota
	Coarse
	Fine
)

// String returns the stage name used in checkpoint filenames and logs.
func (s Stage) String() string {
	switch s {
	case Semantic:
		return "semantic"
	case Coarse:
		return "coarse"
	case Fine:
		return "fine"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ParseStage maps a stage name to its enum value.
func ParseStage(name string) (Stage, error) {
	switch name {
	case "semantic":
		return Semantic, nil
	case "coarse":
		return Coarse, nil
	case "fine":
		return Fine, nil
	default:
		return 0, fmt.Errorf("invalid stage %q, must be one of: semantic, coarse, fine", name)
	}
}

// Aux bundles the frozen auxiliary models a stage wrapper may need.
type Aux struct {
	Wav2Vec     Wav2Vec
	Codec       NeuralCodec
	Conditioner AudioConditioner
}

// NewWrapper builds the wrapper for a stage, validating that every
// auxiliary model the stage requires is present.
func NewWrapper[B tensor.Backend](s Stage, tr Transformer[B], aux Aux) (Wrapper[B], error) {
	if tr == nil {
		return nil, fmt.Errorf("transformer is required")
	}

	switch s {
	case Semantic:
		if aux.Conditioner == nil {
			return nil, fmt.Errorf("semantic stage requires an audio conditioner")
		}
		if aux.Wav2Vec == nil {
			return nil, fmt.Errorf("semantic stage requires a wav2vec feature extractor")
		}
		return &semanticWrapper[B]{tr: tr, wav2vec: aux.Wav2Vec, conditioner: aux.Conditioner}, nil

	case Coarse:
		if aux.Wav2Vec == nil {
			return nil, fmt.Errorf("coarse stage requires a wav2vec feature extractor")
		}
		if aux.Conditioner == nil {
			return nil, fmt.Errorf("coarse stage requires an audio conditioner")
		}
		if aux.Codec == nil {
			return nil, fmt.Errorf("coarse stage requires a neural codec")
		}
		return &coarseWrapper[B]{tr: tr, wav2vec: aux.Wav2Vec, codec: aux.Codec, conditioner: aux.Conditioner}, nil

	case Fine:
		if aux.Conditioner == nil {
			return nil, fmt.Errorf("fine stage requires an audio conditioner")
		}
		if aux.Codec == nil {
			return nil, fmt.Errorf("fine stage requires a neural codec")
		}
		return &fineWrapper[B]{tr: tr, codec: aux.Codec, conditioner: aux.Conditioner}, nil

	default:
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
}

func inputAudio(kwargs map[string]*tensor.RawTensor) (*tensor.RawTensor, error) {
	wave, ok := kwargs["input_audio"]
	if !ok {
		return nil, fmt.Errorf("batch is missing input_audio")
	}
	if wave.DType() != tensor.Float32 {
		return nil, fmt.Errorf("input_audio must be float32, got %s", wave.DType())
	}
	return wave, nil
}

// detach strips the gradient path from a loss, keeping only its value.
func detach(loss *nn.Loss, returnLoss bool) *nn.Loss {
	if returnLoss {
		return loss
	}
	return nn.NewEvalLoss(loss.Item())
}

type semanticWrapper[B tensor.Backend] struct {
	tr          Transformer[B]
	wav2vec     Wav2Vec
	conditioner AudioConditioner
}

func (w *semanticWrapper[B]) Forward(kwargs map[string]*tensor.RawTensor, returnLoss bool) (*nn.Loss, error) {
	wave, err := inputAudio(kwargs)
	if err != nil {
		return nil, err
	}
	cond, err := w.conditioner.Embed(wave)
	if err != nil {
		return nil, fmt.Errorf("conditioning: %w", err)
	}
	semantic, err := w.wav2vec.Tokenize(wave)
	if err != nil {
		return nil, fmt.Errorf("semantic tokens: %w", err)
	}
	loss, err := w.tr.ForwardLoss(map[string]*tensor.RawTensor{
		"conditioning":    cond,
		"semantic_tokens": semantic,
	})
	if err != nil {
		return nil, err
	}
	return detach(loss, returnLoss), nil
}

func (w *semanticWrapper[B]) Generate(kwargs map[string]*tensor.RawTensor) (*tensor.RawTensor, error) {
	out := make(map[string]*tensor.RawTensor, len(kwargs))
	for k, v := range kwargs {
		out[k] = v
	}
	if wave, ok := kwargs["input_audio"]; ok {
		cond, err := w.conditioner.Embed(wave)
		if err != nil {
			return nil, fmt.Errorf("conditioning: %w", err)
		}
		delete(out, "input_audio")
		out["conditioning"] = cond
	}
	return w.tr.Generate(out)
}

func (w *semanticWrapper[B]) Train()                      { w.tr.Train() }
func (w *semanticWrapper[B]) Eval()                       { w.tr.Eval() }
func (w *semanticWrapper[B]) Transformer() Transformer[B] { return w.tr }

type coarseWrapper[B tensor.Backend] struct {
	tr          Transformer[B]
	wav2vec     Wav2Vec
	codec       NeuralCodec
	conditioner AudioConditioner
}

func (w *coarseWrapper[B]) Forward(kwargs map[string]*tensor.RawTensor, returnLoss bool) (*nn.Loss, error) {
	wave, err := inputAudio(kwargs)
	if err != nil {
		return nil, err
	}
	cond, err := w.conditioner.Embed(wave)
	if err != nil {
		return nil, fmt.Errorf("conditioning: %w", err)
	}
	semantic, err := w.wav2vec.Tokenize(wave)
	if err != nil {
		return nil, fmt.Errorf("semantic tokens: %w", err)
	}
	acoustic, err := w.codec.Encode(wave)
	if err != nil {
		return nil, fmt.Errorf("acoustic tokens: %w", err)
	}
	loss, err := w.tr.ForwardLoss(map[string]*tensor.RawTensor{
		"conditioning":    cond,
		"semantic_tokens": semantic,
		"acoustic_tokens": acoustic,
	})
	if err != nil {
		return nil, err
	}
	return detach(loss, returnLoss), nil
}

func (w *coarseWrapper[B]) Generate(kwargs map[string]*tensor.RawTensor) (*tensor.RawTensor, error) {
	out := make(map[string]*tensor.RawTensor, len(kwargs))
	for k, v := range kwargs {
		out[k] = v
	}
	if wave, ok := kwargs["input_audio"]; ok {
		cond, err := w.conditioner.Embed(wave)
		if err != nil {
			return nil, fmt.Errorf("conditioning: %w", err)
		}
		semantic, err := w.wav2vec.Tokenize(wave)
		if err != nil {
			return nil, fmt.Errorf("semantic tokens: %w", err)
		}
		delete(out, "input_audio")
		out["conditioning"] = cond
		out["semantic_tokens"] = semantic
	}
	return w.tr.Generate(out)
}

func (w *coarseWrapper[B]) Train()                      { w.tr.Train() }
func (w *coarseWrapper[B]) Eval()                       { w.tr.Eval() }
func (w *coarseWrapper[B]) Transformer() Transformer[B] { return w.tr }

type fineWrapper[B tensor.Backend] struct {
	tr          Transformer[B]
	codec       NeuralCodec
	conditioner AudioConditioner
}

func (w *fineWrapper[B]) Forward(kwargs map[string]*tensor.RawTensor, returnLoss bool) (*nn.Loss, error) {
	wave, err := inputAudio(kwargs)
	if err != nil {
		return nil, err
	}
	cond, err := w.conditioner.Embed(wave)
	if err != nil {
		return nil, fmt.Errorf("conditioning: %w", err)
	}
	acoustic, err := w.codec.Encode(wave)
	if err != nil {
		return nil, fmt.Errorf("acoustic tokens: %w", err)
	}
	loss, err := w.tr.ForwardLoss(map[string]*tensor.RawTensor{
		"conditioning":    cond,
		"acoustic_tokens": acoustic,
	})
	if err != nil {
		return nil, err
	}
	return detach(loss, returnLoss), nil
}

func (w *fineWrapper[B]) Generate(kwargs map[string]*tensor.RawTensor) (*tensor.RawTensor, error) {
	out := make(map[string]*tensor.RawTensor, len(kwargs))
	for k, v := range kwargs {
		out[k] = v
	}
	if wave, ok := kwargs["input_audio"]; ok {
		cond, err := w.conditioner.Embed(wave)
		if err != nil {
			return nil, fmt.Errorf("conditioning: %w", err)
		}
		acoustic, err := w.codec.Encode(wave)
		if err != nil {
			return nil, fmt.Errorf("acoustic tokens: %w", err)
		}
		delete(out, "input_audio")
		out["conditioning"] = cond
		out["acoustic_tokens"] = acoustic
	}
	return w.tr.Generate(out)
}

func (w *fineWrapper[B]) Train()                      { w.tr.Train() }
func (w *fineWrapper[B]) Eval()                       { w.tr.Eval() }
func (w *fineWrapper[B]) Transformer() Transformer[B] { return w.tr }
