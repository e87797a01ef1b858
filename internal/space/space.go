package space

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"quant-optimizer/internal/model"
)

// InvalidSpaceError reports a malformed parameter declaration. It is raised
// during construction, before any trial runs.
type InvalidSpaceError struct {
	Reason string
}

func (e *InvalidSpaceError) Error() string {
	return "invalid parameter space: " + e.Reason
}

// Space is a validated, normalized parameter space. Specs are held in
// lexicographic name order and every spec's values are materialized,
// deduplicated and kept in declared order, so enumeration is deterministic.
type Space struct {
	specs []model.ParameterSpec
}

// New validates the declared specs and materializes range specs into
// concrete value lists. A range whose step does not evenly divide the span
// is truncated: the last value is the largest low+i*step <= high.
func New(specs []model.ParameterSpec) (*Space, error) {
	if len(specs) == 0 {
		return nil, &InvalidSpaceError{Reason: "no parameters declared"}
	}

	seen := make(map[string]bool, len(specs))
	normalized := make([]model.ParameterSpec, 0, len(specs))

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, &InvalidSpaceError{Reason: "parameter with empty name"}
		}
		if seen[spec.Name] {
			return nil, &InvalidSpaceError{Reason: fmt.Sprintf("duplicate parameter %q", spec.Name)}
		}
		seen[spec.Name] = true

		values, err := materialize(spec)
		if err != nil {
			return nil, err
		}

		normalized = append(normalized, model.ParameterSpec{
			Name:   spec.Name,
			Kind:   spec.Kind,
			Values: values,
		})
	}

	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].Name < normalized[j].Name
	})

	return &Space{specs: normalized}, nil
}

func materialize(spec model.ParameterSpec) ([]float64, error) {
	switch spec.Kind {
	case model.KindDiscrete:
		if len(spec.Values) == 0 {
			return nil, &InvalidSpaceError{Reason: fmt.Sprintf("parameter %q has no values", spec.Name)}
		}
		return dedupe(spec.Values), nil

	case model.KindRange:
		if spec.Low > spec.High {
			return nil, &InvalidSpaceError{Reason: fmt.Sprintf("parameter %q has inverted bounds (%g > %g)", spec.Name, spec.Low, spec.High)}
		}
		if spec.Step <= 0 {
			return nil, &InvalidSpaceError{Reason: fmt.Sprintf("parameter %q has non-positive step %g", spec.Name, spec.Step)}
		}
		// Index-based expansion avoids accumulating float error across steps.
		count := int(math.Floor((spec.High-spec.Low)/spec.Step)) + 1
		values := make([]float64, 0, count)
		for i := 0; i < count; i++ {
			values = append(values, spec.Low+float64(i)*spec.Step)
		}
		return dedupe(values), nil

	default:
		return nil, &InvalidSpaceError{Reason: fmt.Sprintf("parameter %q has unknown kind %q", spec.Name, spec.Kind)}
	}
}

func dedupe(values []float64) []float64 {
	seen := make(map[float64]bool, len(values))
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Specs returns the normalized specs in enumeration order.
func (s *Space) Specs() []model.ParameterSpec {
	return s.specs
}

// Size returns the total combination count without materializing the
// sequence. Saturates at math.MaxInt64 on overflow.
func (s *Space) Size() int64 {
	total := int64(1)
	for _, spec := range s.specs {
		arity := int64(len(spec.Values))
		if total > math.MaxInt64/arity {
			return math.MaxInt64
		}
		total *= arity
	}
	return total
}

// Enumerate yields every combination in deterministic order: lexicographic
// over parameter names, ascending over each parameter's declared values.
func (s *Space) Enumerate() []model.Combination {
	total := s.Size()
	combos := make([]model.Combination, 0, total)

	indices := make([]int, len(s.specs))
	for {
		combo := make(model.Combination, len(s.specs))
		for i, spec := range s.specs {
			combo[spec.Name] = spec.Values[indices[i]]
		}
		combos = append(combos, combo)

		// Advance the odometer, least-significant position last.
		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(s.specs[pos].Values) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return combos
		}
	}
}

// Random draws one combination uniformly over the declared values of each
// parameter. Used by the reference sampler for adaptive search.
func (s *Space) Random(rng *rand.Rand) model.Combination {
	combo := make(model.Combination, len(s.specs))
	for _, spec := range s.specs {
		combo[spec.Name] = spec.Values[rng.Intn(len(spec.Values))]
	}
	return combo
}
