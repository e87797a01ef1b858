package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParameterKind distinguishes how a ParameterSpec declares its values.
type ParameterKind string

const (
	KindDiscrete ParameterKind = "discrete"
	KindRange    ParameterKind = "range"
)

// ParameterSpec declares one axis of the search space: either an explicit
// set of values or a numeric range expanded with a fixed step.
type ParameterSpec struct {
	Name   string        `json:"name"`
	Kind   ParameterKind `json:"kind"`
	Values []float64     `json:"values,omitempty"`
	Low    float64       `json:"low,omitempty"`
	High   float64       `json:"high,omitempty"`
	Step   float64       `json:"step,omitempty"`
}

// Combination maps parameter names to concrete values. Treated as immutable
// once generated: callers that need to modify one must Clone it first.
type Combination map[string]float64

func (c Combination) Clone() Combination {
	out := make(Combination, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Key returns a canonical "name=value" encoding, stable across map iteration
// order. Used for logging and duplicate detection.
func (c Combination) Key() string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+strconv.FormatFloat(c[name], 'g', -1, 64))
	}
	return strings.Join(parts, ",")
}

// Trial is one parameter combination submitted for evaluation, together with
// the context the evaluator needs. Seq is the enumeration order within its
// run and breaks ranking ties deterministically.
type Trial struct {
	Seq        int             `json:"seq"`
	StrategyID string          `json:"strategy_id"`
	Params     Combination     `json:"params"`
	Symbols    []string        `json:"symbols"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Capital    decimal.Decimal `json:"capital"`
}

// MetricsRecord 回测绩效指标
type MetricsRecord struct {
	Sharpe      float64            `json:"sharpe"`
	TotalReturn decimal.Decimal    `json:"total_return"`
	MaxDrawdown float64            `json:"max_drawdown"`
	WinRate     float64            `json:"win_rate"`
	Trades      int                `json:"trades"`
	Extra       map[string]float64 `json:"extra,omitempty"`
}

// Failure reason codes recorded on failed trials.
const (
	FailureEvaluation     = "evaluation_error"
	FailureTimeout        = "timeout"
	FailureInvalidMetrics = "invalid_metrics"
)

type TrialFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f *TrialFailure) Error() string {
	return fmt.Sprintf("trial failed (%s): %s", f.Code, f.Message)
}

// TrialOutcome holds either a metrics record or a typed failure, never both.
type TrialOutcome struct {
	Metrics *MetricsRecord `json:"metrics,omitempty"`
	Failure *TrialFailure  `json:"failure,omitempty"`
}

func (o TrialOutcome) OK() bool {
	return o.Metrics != nil && o.Failure == nil
}

// TrialResult pairs a trial with its outcome, in completion order.
type TrialResult struct {
	Trial   Trial        `json:"trial"`
	Outcome TrialOutcome `json:"outcome"`
}
