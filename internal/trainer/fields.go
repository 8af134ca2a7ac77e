package trainer

import (
	"fmt"

	"github.com/chorale-ml/chorale/internal/tensor"
)

// fieldRule names a positional batch element when its predicate matches.
type fieldRule struct {
	name  string
	match func(*tensor.RawTensor) bool
}

// batchFieldRules is the ordered classification table for batch tuples.
// The first matching rule wins for each position.
var batchFieldRules = []fieldRule{
	{
		name: "input_audio",
		match: func(r *tensor.RawTensor) bool {
			ndim := r.Shape().Ndim()
			return r.DType() == tensor.Float32 && (ndim == 2 || ndim == 3)
		},
	},
}

// fieldMapping is the immutable position→name assignment inferred from the
// first batch of a session.
type fieldMapping struct {
	names []string
}

// inferFieldMapping classifies each positional element of a batch against
// the rule table. Every element must match some rule, and no two positions
// may resolve to the same name; the dataset shape is assumed invariant for
// the session, so either failure is fatal.
func inferFieldMapping(batch []*tensor.RawTensor, rules []fieldRule) (*fieldMapping, error) {
	names := make([]string, len(batch))
	seen := make(map[string]int, len(batch))

	for i, el := range batch {
		matched := false
		for _, rule := range rules {
			if rule.match(el) {
				if prev, dup := seen[rule.name]; dup {
					return nil, fmt.Errorf("batch positions %d and %d both classify as %q", prev, i, rule.name)
				}
				seen[rule.name] = i
				names[i] = rule.name
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("batch position %d (%s tensor of shape %v) matches no known field",
				i, el.DType(), el.Shape())
		}
	}
	return &fieldMapping{names: names}, nil
}

// apply converts a positional batch into the keyword map the stage wrapper
// expects.
func (m *fieldMapping) apply(batch []*tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	if len(batch) != len(m.names) {
		return nil, fmt.Errorf("batch has %d fields, mapping was inferred for %d", len(batch), len(m.names))
	}
	kwargs := make(map[string]*tensor.RawTensor, len(batch))
	for i, el := range batch {
		kwargs[m.names[i]] = el
	}
	return kwargs, nil
}
