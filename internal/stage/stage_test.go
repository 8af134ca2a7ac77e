package stage

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorale-ml/chorale/internal/backend/cpu"
	"github.com/chorale-ml/chorale/internal/nn"
	"github.com/chorale-ml/chorale/internal/tensor"
)

type fakeTransformer struct {
	lastKwargs []string
	training   bool
	backwards  int
}

func (f *fakeTransformer) Parameters() []*nn.Parameter[*cpu.CPUBackend] { return nil }
func (f *fakeTransformer) StateDict() map[string]*tensor.RawTensor     { return nil }
func (f *fakeTransformer) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}
func (f *fakeTransformer) Train() { f.training = true }
func (f *fakeTransformer) Eval()  { f.training = false }

func (f *fakeTransformer) ForwardLoss(kwargs map[string]*tensor.RawTensor) (*nn.Loss, error) {
	f.lastKwargs = f.lastKwargs[:0]
	for k := range kwargs {
		f.lastKwargs = append(f.lastKwargs, k)
	}
	sort.Strings(f.lastKwargs)
	return nn.NewLoss(1.5, func(scale float64) error {
		f.backwards++
		return nil
	}), nil
}

func (f *fakeTransformer) Generate(kwargs map[string]*tensor.RawTensor) (*tensor.RawTensor, error) {
	f.lastKwargs = f.lastKwargs[:0]
	for k := range kwargs {
		f.lastKwargs = append(f.lastKwargs, k)
	}
	sort.Strings(f.lastKwargs)
	return tensor.NewRaw(tensor.Shape{1, 4}, tensor.Int64, tensor.CPU)
}

type fakeWav2Vec struct{ rate, multiple int }

func (f *fakeWav2Vec) TargetSampleRate() int { return f.rate }
func (f *fakeWav2Vec) SeqLenMultipleOf() int { return f.multiple }
func (f *fakeWav2Vec) Tokenize(wave *tensor.RawTensor) (*tensor.RawTensor, error) {
	return tensor.NewRaw(tensor.Shape{wave.Shape()[0], 8}, tensor.Int64, tensor.CPU)
}

type fakeCodec struct{ rate int }

func (f *fakeCodec) TargetSampleRate() int { return f.rate }
func (f *fakeCodec) Encode(wave *tensor.RawTensor) (*tensor.RawTensor, error) {
	return tensor.NewRaw(tensor.Shape{wave.Shape()[0], 4, 8}, tensor.Int64, tensor.CPU)
}
func (f *fakeCodec) Decode(tokens *tensor.RawTensor) (*tensor.RawTensor, error) {
	return tensor.NewRaw(tensor.Shape{tokens.Shape()[0], 160}, tensor.Float32, tensor.CPU)
}

type fakeConditioner struct{ fail bool }

func (f *fakeConditioner) Embed(wave *tensor.RawTensor) (*tensor.RawTensor, error) {
	if f.fail {
		return nil, fmt.Errorf("conditioner unavailable")
	}
	return tensor.NewRaw(tensor.Shape{wave.Shape()[0], 16}, tensor.Float32, tensor.CPU)
}

func audioBatch(t *testing.T, batch, length int) map[string]*tensor.RawTensor {
	t.Helper()
	wave, err := tensor.NewRaw(tensor.Shape{batch, length}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	return map[string]*tensor.RawTensor{"input_audio": wave}
}

func TestParseStage(t *testing.T) {
	for name, want := range map[string]Stage{
		"semantic": Semantic,
		"coarse":   Coarse,
		"fine":     Fine,
	} {
		got, err := ParseStage(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}

	_, err := ParseStage("quantizer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid stage")
}

func TestNewWrapperPreconditions(t *testing.T) {
	tr := &fakeTransformer{}
	w2v := &fakeWav2Vec{rate: 16000, multiple: 320}
	codec := &fakeCodec{rate: 24000}
	cond := &fakeConditioner{}

	cases := []struct {
		name    string
		stage   Stage
		aux     Aux
		wantErr string
	}{
		{"semantic ok", Semantic, Aux{Wav2Vec: w2v, Conditioner: cond}, ""},
		{"semantic no conditioner", Semantic, Aux{Wav2Vec: w2v}, "audio conditioner"},
		{"semantic no wav2vec", Semantic, Aux{Conditioner: cond}, "wav2vec"},
		{"coarse ok", Coarse, Aux{Wav2Vec: w2v, Conditioner: cond, Codec: codec}, ""},
		{"coarse no codec", Coarse, Aux{Wav2Vec: w2v, Conditioner: cond}, "neural codec"},
		{"fine ok", Fine, Aux{Conditioner: cond, Codec: codec}, ""},
		{"fine no codec", Fine, Aux{Conditioner: cond}, "neural codec"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := NewWrapper[*cpu.CPUBackend](tc.stage, tr, tc.aux)
			if tc.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, w)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}

	_, err := NewWrapper[*cpu.CPUBackend](Semantic, nil, Aux{Wav2Vec: w2v, Conditioner: cond})
	require.Error(t, err)
}

func TestSemanticForwardRoutesTokens(t *testing.T) {
	tr := &fakeTransformer{}
	w, err := NewWrapper[*cpu.CPUBackend](Semantic, tr, Aux{
		Wav2Vec:     &fakeWav2Vec{rate: 16000, multiple: 320},
		Conditioner: &fakeConditioner{},
	})
	require.NoError(t, err)

	loss, err := w.Forward(audioBatch(t, 2, 640), true)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, loss.Item(), 1e-9)
	assert.Equal(t, []string{"conditioning", "semantic_tokens"}, tr.lastKwargs)
}

func TestCoarseForwardRoutesTokens(t *testing.T) {
	tr := &fakeTransformer{}
	w, err := NewWrapper[*cpu.CPUBackend](Coarse, tr, Aux{
		Wav2Vec:     &fakeWav2Vec{rate: 16000, multiple: 320},
		Codec:       &fakeCodec{rate: 24000},
		Conditioner: &fakeConditioner{},
	})
	require.NoError(t, err)

	_, err = w.Forward(audioBatch(t, 2, 640), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"acoustic_tokens", "conditioning", "semantic_tokens"}, tr.lastKwargs)
}

func TestFineForwardRoutesTokens(t *testing.T) {
	tr := &fakeTransformer{}
	w, err := NewWrapper[*cpu.CPUBackend](Fine, tr, Aux{
		Codec:       &fakeCodec{rate: 24000},
		Conditioner: &fakeConditioner{},
	})
	require.NoError(t, err)

	_, err = w.Forward(audioBatch(t, 2, 640), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"acoustic_tokens", "conditioning"}, tr.lastKwargs)
}

func TestForwardWithoutLossDetaches(t *testing.T) {
	tr := &fakeTransformer{}
	w, err := NewWrapper[*cpu.CPUBackend](Semantic, tr, Aux{
		Wav2Vec:     &fakeWav2Vec{rate: 16000, multiple: 320},
		Conditioner: &fakeConditioner{},
	})
	require.NoError(t, err)

	loss, err := w.Forward(audioBatch(t, 1, 320), false)
	require.NoError(t, err)
	require.NoError(t, loss.Backward(1.0))
	assert.Zero(t, tr.backwards, "detached loss must not drive the transformer backward pass")
}

func TestForwardRequiresInputAudio(t *testing.T) {
	tr := &fakeTransformer{}
	w, err := NewWrapper[*cpu.CPUBackend](Semantic, tr, Aux{
		Wav2Vec:     &fakeWav2Vec{rate: 16000, multiple: 320},
		Conditioner: &fakeConditioner{},
	})
	require.NoError(t, err)

	_, err = w.Forward(map[string]*tensor.RawTensor{}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input_audio")
}

func TestForwardPropagatesAuxErrors(t *testing.T) {
	tr := &fakeTransformer{}
	w, err := NewWrapper[*cpu.CPUBackend](Semantic, tr, Aux{
		Wav2Vec:     &fakeWav2Vec{rate: 16000, multiple: 320},
		Conditioner: &fakeConditioner{fail: true},
	})
	require.NoError(t, err)

	_, err = w.Forward(audioBatch(t, 1, 320), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conditioner unavailable")
}

func TestGenerateReplacesAudioWithConditioning(t *testing.T) {
	tr := &fakeTransformer{}
	w, err := NewWrapper[*cpu.CPUBackend](Semantic, tr, Aux{
		Wav2Vec:     &fakeWav2Vec{rate: 16000, multiple: 320},
		Conditioner: &fakeConditioner{},
	})
	require.NoError(t, err)

	out, err := w.Generate(audioBatch(t, 1, 320))
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Equal(t, []string{"conditioning"}, tr.lastKwargs)
}

func TestTrainEvalDelegates(t *testing.T) {
	tr := &fakeTransformer{}
	w, err := NewWrapper[*cpu.CPUBackend](Fine, tr, Aux{
		Codec:       &fakeCodec{rate: 24000},
		Conditioner: &fakeConditioner{},
	})
	require.NoError(t, err)

	w.Train()
	assert.True(t, tr.training)
	w.Eval()
	assert.False(t, tr.training)
	assert.Same(t, tr, w.Transformer())
}
