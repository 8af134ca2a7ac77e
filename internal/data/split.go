package data

import (
	"fmt"
	"math/rand"

	"github.com/chorale-ml/chorale/internal/tensor"
)

// Subset is a view over a base dataset restricted to a fixed index list.
type Subset struct {
	base    Dataset
	indices []int
}

// Len returns the subset size.
func (s *Subset) Len() int {
	return len(s.indices)
}

// At returns the sample at subset position i.
func (s *Subset) At(i int) ([]*tensor.RawTensor, error) {
	if i < 0 || i >= len(s.indices) {
		return nil, fmt.Errorf("sample index %d out of range [0, %d)", i, len(s.indices))
	}
	return s.base.At(s.indices[i])
}

// Indices returns the base-dataset indices backing this subset.
func (s *Subset) Indices() []int {
	return s.indices
}

// RandomSplit partitions ds into train and validation subsets.
//
// The split is a deterministic function of the seed: the same seed and
// fraction always assign the same samples to each side, so training can
// resume with an identical partition. The train partition is rounded down
// and validation takes the remainder, so a positive fraction always holds
// out at least one sample even on small datasets.
func RandomSplit(ds Dataset, validFrac float64, seed int64) (train, valid *Subset, err error) {
	if validFrac < 0 || validFrac >= 1 {
		return nil, nil, fmt.Errorf("validation fraction must be in [0, 1), got %g", validFrac)
	}

	n := ds.Len()
	trainSize := int((1 - validFrac) * float64(n))
	if trainSize == 0 {
		return nil, nil, fmt.Errorf("validation fraction %g leaves no training samples (dataset size %d)", validFrac, n)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	train = &Subset{base: ds, indices: perm[:trainSize]}
	valid = &Subset{base: ds, indices: perm[trainSize:]}
	return train, valid, nil
}
