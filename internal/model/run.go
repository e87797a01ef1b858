package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Search kinds supported by the optimizer.
const (
	SearchGrid        = "grid"
	SearchWalkForward = "walk_forward"
	SearchAdaptive    = "adaptive"
)

// RunConfig is the full configuration of one optimization invocation. It is
// snapshotted verbatim into the RunRecord so a run can always be reproduced.
type RunConfig struct {
	StrategyID string          `json:"strategy_id" binding:"required"`
	SearchKind string          `json:"search_kind" binding:"required"`
	Symbols    []string        `json:"symbols" binding:"required"`
	Start      time.Time       `json:"start" binding:"required"`
	End        time.Time       `json:"end" binding:"required"`
	Capital    decimal.Decimal `json:"capital"`
	Specs      []ParameterSpec `json:"specs" binding:"required"`

	Concurrency     int `json:"concurrency,omitempty"`
	TrialTimeoutSec int `json:"trial_timeout_sec,omitempty"`
	MaxCombinations int `json:"max_combinations,omitempty"`

	// Walk-forward knobs (days).
	InSampleDays  int `json:"in_sample_days,omitempty"`
	OutSampleDays int `json:"out_sample_days,omitempty"`
	StepDays      int `json:"step_days,omitempty"`

	// Adaptive knobs. TrialBudget <= 0 with TimeBudgetSec > 0 selects the
	// time-budgeted mode, where the total trial count is unknown up front.
	TrialBudget   int `json:"trial_budget,omitempty"`
	TimeBudgetSec int `json:"time_budget_sec,omitempty"`
}

func (c RunConfig) TrialTimeout() time.Duration {
	return time.Duration(c.TrialTimeoutSec) * time.Second
}

func (c RunConfig) TimeBudget() time.Duration {
	return time.Duration(c.TimeBudgetSec) * time.Second
}

// Period is one walk-forward window pair. In-sample strictly precedes
// out-of-sample and the two ranges are contiguous.
type Period struct {
	InStart  time.Time `json:"in_start"`
	InEnd    time.Time `json:"in_end"`
	OutStart time.Time `json:"out_start"`
	OutEnd   time.Time `json:"out_end"`
}

// PeriodResult records one walk-forward period. Failed periods are kept with
// Error set rather than dropped, so a run always accounts for every period.
type PeriodResult struct {
	Period      Period         `json:"period"`
	BestParams  Combination    `json:"best_params,omitempty"`
	InMetrics   *MetricsRecord `json:"in_metrics,omitempty"`
	OutMetrics  *MetricsRecord `json:"out_metrics,omitempty"`
	Degradation float64        `json:"degradation"`
	Failed      bool           `json:"failed,omitempty"`
	Error       string         `json:"error,omitempty"`
	Trials      []TrialResult  `json:"trials,omitempty"`
}

// WalkForwardStats aggregates degradation across all successful periods.
type WalkForwardStats struct {
	MeanDegradation   float64 `json:"mean_degradation"`
	MedianDegradation float64 `json:"median_degradation"`
	MeanInSharpe      float64 `json:"mean_in_sharpe"`
	MeanOutSharpe     float64 `json:"mean_out_sharpe"`
	PositiveOutRatio  float64 `json:"positive_out_ratio"`
	Robust            bool    `json:"robust"`
}

// RunSummary carries cheap aggregate statistics over all trials of a run.
type RunSummary struct {
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	MeanSharpe float64 `json:"mean_sharpe"`
	StdSharpe  float64 `json:"std_sharpe"`
	MinSharpe  float64 `json:"min_sharpe"`
	MaxSharpe  float64 `json:"max_sharpe"`
	MeanReturn float64 `json:"mean_return"`
}

// RunRecord is the durable result of one optimization invocation. Created
// once at the end of a run and never mutated afterwards.
type RunRecord struct {
	RunID       string            `json:"run_id"`
	CreatedAt   time.Time         `json:"created_at"`
	StrategyID  string            `json:"strategy_id"`
	SearchKind  string            `json:"search_kind"`
	Config      RunConfig         `json:"config"`
	Best        Combination       `json:"best_params,omitempty"`
	BestMetrics *MetricsRecord    `json:"best_metrics,omitempty"`
	Trials      []TrialResult     `json:"trials,omitempty"`
	Periods     []PeriodResult    `json:"periods,omitempty"`
	WalkForward *WalkForwardStats `json:"walk_forward,omitempty"`
	Summary     *RunSummary       `json:"summary,omitempty"`
	Cancelled   bool              `json:"cancelled,omitempty"`
}

// IndexEntry projects the record for the append-only history index.
func (r *RunRecord) IndexEntry() RunIndexEntry {
	e := RunIndexEntry{
		RunID:      r.RunID,
		CreatedAt:  r.CreatedAt,
		StrategyID: r.StrategyID,
		SearchKind: r.SearchKind,
		Symbols:    r.Config.Symbols,
		Start:      r.Config.Start,
		End:        r.Config.End,
	}
	if r.BestMetrics != nil {
		e.BestSharpe = r.BestMetrics.Sharpe
		e.BestReturn = r.BestMetrics.TotalReturn
	}
	return e
}

// RunIndexEntry is the compact index projection of a RunRecord, kept in the
// history file for listing and filtering without loading full detail.
type RunIndexEntry struct {
	RunID      string          `json:"run_id"`
	CreatedAt  time.Time       `json:"created_at"`
	StrategyID string          `json:"strategy_id"`
	SearchKind string          `json:"search_kind"`
	BestSharpe float64         `json:"best_sharpe"`
	BestReturn decimal.Decimal `json:"best_return"`
	Symbols    []string        `json:"symbols"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
}

// FormatRunID builds a run identifier as a pure function of its inputs.
// n > 0 appends a disambiguator for timestamp collisions.
func FormatRunID(strategyID, searchKind string, ts time.Time, n int) string {
	id := fmt.Sprintf("%s_%s_%s", strategyID, searchKind, ts.UTC().Format("20060102T150405Z"))
	if n > 0 {
		id = fmt.Sprintf("%s_%d", id, n)
	}
	return id
}
