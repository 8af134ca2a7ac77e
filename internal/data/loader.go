package data

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/chorale-ml/chorale/internal/parallel"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Loader draws fixed-size batches from a dataset, cycling forever.
//
// Each call to Next consumes the next batchSize samples of the current
// epoch order; when the order is exhausted a new epoch begins, reshuffled
// when shuffling is enabled. Samples within a batch are fetched in
// parallel since decoding audio dominates batch assembly time.
type Loader struct {
	ds        Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand

	order []int
	pos   int
}

// NewLoader builds a cycling loader over ds.
func NewLoader(ds Dataset, batchSize int, shuffle bool, seed int64) (*Loader, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	l := &Loader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
	}
	l.reshuffle()
	return l, nil
}

func (l *Loader) reshuffle() {
	if l.order == nil {
		l.order = make([]int, l.ds.Len())
		for i := range l.order {
			l.order[i] = i
		}
	}
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	l.pos = 0
}

// nextIndex advances the epoch cursor, starting a fresh epoch when the
// current one is exhausted.
func (l *Loader) nextIndex() int {
	if l.pos >= len(l.order) {
		l.reshuffle()
	}
	idx := l.order[l.pos]
	l.pos++
	return idx
}

// Next assembles the next batch.
//
// The result is a tuple of stacked tensors: position p has shape
// [batchSize, ...sampleShape(p)]. All samples in the batch must agree on
// tuple arity, dtype and shape per position.
func (l *Loader) Next() ([]*tensor.RawTensor, error) {
	indices := make([]int, l.batchSize)
	for i := range indices {
		indices[i] = l.nextIndex()
	}

	samples := make([][]*tensor.RawTensor, l.batchSize)
	var mu sync.Mutex
	var firstErr error
	parallel.For(l.batchSize, func(i int) {
		s, err := l.ds.At(indices[i])
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("sample %d: %w", indices[i], err)
			}
			mu.Unlock()
			return
		}
		samples[i] = s
	}, parallel.DefaultConfig())
	if firstErr != nil {
		return nil, firstErr
	}

	arity := len(samples[0])
	for i, s := range samples {
		if len(s) != arity {
			return nil, fmt.Errorf("sample %d has %d fields, expected %d", indices[i], len(s), arity)
		}
	}

	batch := make([]*tensor.RawTensor, arity)
	for p := 0; p < arity; p++ {
		stacked, err := stack(samples, p)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", p, err)
		}
		batch[p] = stacked
	}
	return batch, nil
}

// stack concatenates position p of every sample along a new leading axis.
func stack(samples [][]*tensor.RawTensor, p int) (*tensor.RawTensor, error) {
	first := samples[0][p]
	for i, s := range samples {
		if s[p].DType() != first.DType() {
			return nil, fmt.Errorf("sample %d dtype %s does not match %s", i, s[p].DType(), first.DType())
		}
		if !s[p].Shape().Equal(first.Shape()) {
			return nil, fmt.Errorf("sample %d shape %v does not match %v", i, s[p].Shape(), first.Shape())
		}
	}

	outShape := append(tensor.Shape{len(samples)}, first.Shape()...)
	out, err := tensor.NewRaw(outShape, first.DType(), first.Device())
	if err != nil {
		return nil, err
	}

	rowBytes := len(first.Data())
	dst := out.Data()
	for i, s := range samples {
		copy(dst[i*rowBytes:(i+1)*rowBytes], s[p].Data())
	}
	return out, nil
}
