package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"quant-optimizer/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Evaluator is the external backtest contract. Implementations must be safe
// to call concurrently from multiple workers with different arguments.
type Evaluator interface {
	Evaluate(ctx context.Context, strategyID string, params model.Combination,
		symbols []string, start, end time.Time, capital decimal.Decimal) (*model.MetricsRecord, error)
}

// Func adapts a plain function to the Evaluator interface. Handy in tests.
type Func func(ctx context.Context, strategyID string, params model.Combination,
	symbols []string, start, end time.Time, capital decimal.Decimal) (*model.MetricsRecord, error)

func (f Func) Evaluate(ctx context.Context, strategyID string, params model.Combination,
	symbols []string, start, end time.Time, capital decimal.Decimal) (*model.MetricsRecord, error) {
	return f(ctx, strategyID, params, symbols, start, end, capital)
}

const DefaultTrialTimeout = 5 * time.Minute

// TrialEvaluator wraps the external evaluator with a per-trial timeout,
// panic recovery and error normalization. It is the unit of work for every
// search strategy: whatever the evaluator does, the result is always a
// TrialOutcome and never an error that could abort sibling trials.
type TrialEvaluator struct {
	backend Evaluator
	timeout time.Duration
	logger  *zap.Logger
}

func NewTrialEvaluator(backend Evaluator, timeout time.Duration, logger *zap.Logger) *TrialEvaluator {
	if timeout <= 0 {
		timeout = DefaultTrialTimeout
	}
	return &TrialEvaluator{
		backend: backend,
		timeout: timeout,
		logger:  logger,
	}
}

type evalResult struct {
	metrics *model.MetricsRecord
	err     error
}

// Run evaluates one trial. The timeout context is derived from Background,
// not from the run's cancel context: cancellation is checked at submission
// boundaries only, an in-flight trial is allowed to finish or time out.
func (e *TrialEvaluator) Run(trial model.Trial) model.TrialOutcome {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	done := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evalResult{err: fmt.Errorf("evaluator panicked: %v", r)}
			}
		}()
		metrics, err := e.backend.Evaluate(ctx, trial.StrategyID, trial.Params,
			trial.Symbols, trial.Start, trial.End, trial.Capital)
		done <- evalResult{metrics: metrics, err: err}
	}()

	select {
	case <-ctx.Done():
		e.logger.Warn("trial timed out",
			zap.String("strategy", trial.StrategyID),
			zap.String("params", trial.Params.Key()),
			zap.Duration("timeout", e.timeout),
		)
		return failure(model.FailureTimeout, fmt.Sprintf("evaluation exceeded %s", e.timeout))

	case res := <-done:
		if res.err != nil {
			e.logger.Warn("trial evaluation failed",
				zap.String("strategy", trial.StrategyID),
				zap.String("params", trial.Params.Key()),
				zap.Error(res.err),
			)
			return failure(model.FailureEvaluation, res.err.Error())
		}
		if reason := validate(res.metrics); reason != "" {
			return failure(model.FailureInvalidMetrics, reason)
		}
		return model.TrialOutcome{Metrics: res.metrics}
	}
}

func validate(m *model.MetricsRecord) string {
	if m == nil {
		return "evaluator returned no metrics"
	}
	if math.IsNaN(m.Sharpe) || math.IsInf(m.Sharpe, 0) {
		return fmt.Sprintf("non-finite sharpe ratio %v", m.Sharpe)
	}
	if math.IsNaN(m.MaxDrawdown) || math.IsInf(m.MaxDrawdown, 0) {
		return fmt.Sprintf("non-finite drawdown %v", m.MaxDrawdown)
	}
	return ""
}

func failure(code, message string) model.TrialOutcome {
	return model.TrialOutcome{Failure: &model.TrialFailure{Code: code, Message: message}}
}
