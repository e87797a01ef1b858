package search

import (
	"context"
	"fmt"
	"math"
	"time"

	"quant-optimizer/internal/model"
	"quant-optimizer/internal/scheduler"
	"quant-optimizer/internal/space"

	"go.uber.org/zap"
)

// epsDegradation clamps the degradation denominator so a near-zero
// in-sample Sharpe cannot blow the ratio up.
const epsDegradation = 1e-3

// WalkForward validates robustness by running a nested grid search on each
// in-sample window and re-testing the winner on the adjacent out-of-sample
// window.
type WalkForward struct {
	sched  *scheduler.Scheduler
	grid   *Grid
	logger *zap.Logger
}

func NewWalkForward(sched *scheduler.Scheduler, logger *zap.Logger) *WalkForward {
	return &WalkForward{
		sched:  sched,
		grid:   NewGrid(sched, logger),
		logger: logger,
	}
}

// GeneratePeriods rolls a fixed in-sample/out-of-sample day pair forward by
// stepDays until the dataset range is exhausted. Out-of-sample starts
// exactly where in-sample ends; the final partial window is dropped when its
// out-of-sample range would run past end. Deterministic: the same inputs
// always produce the same sequence.
func GeneratePeriods(start, end time.Time, inDays, outDays, stepDays int) ([]model.Period, error) {
	if inDays <= 0 || outDays <= 0 || stepDays <= 0 {
		return nil, &model.InvalidConfigError{
			Reason: fmt.Sprintf("walk-forward windows must be positive (in=%d, out=%d, step=%d)", inDays, outDays, stepDays),
		}
	}
	if !start.Before(end) {
		return nil, &model.InvalidConfigError{
			Reason: fmt.Sprintf("walk-forward range is empty (%s >= %s)", start.Format(time.DateOnly), end.Format(time.DateOnly)),
		}
	}

	var periods []model.Period
	for cur := start; ; cur = cur.AddDate(0, 0, stepDays) {
		inEnd := cur.AddDate(0, 0, inDays)
		outEnd := inEnd.AddDate(0, 0, outDays)
		if outEnd.After(end) {
			break
		}
		periods = append(periods, model.Period{
			InStart:  cur,
			InEnd:    inEnd,
			OutStart: inEnd,
			OutEnd:   outEnd,
		})
	}
	return periods, nil
}

// Run executes the walk-forward chain. Periods whose in-sample search or
// out-of-sample test fails are recorded as failed rather than dropped. A run
// where no period has a positive out-of-sample Sharpe completes with
// Robust=false instead of failing: the degradation profile is diagnostic
// even when nothing generalizes.
func (w *WalkForward) Run(ctx context.Context, cfg model.RunConfig, sp *space.Space, progress scheduler.ProgressFunc) (*model.RunRecord, error) {
	periods, err := GeneratePeriods(cfg.Start, cfg.End, cfg.InSampleDays, cfg.OutSampleDays, cfg.StepDays)
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		return nil, &model.InvalidConfigError{
			Reason: fmt.Sprintf("walk-forward windows (in=%d, out=%d) do not fit the %s..%s range",
				cfg.InSampleDays, cfg.OutSampleDays, cfg.Start.Format(time.DateOnly), cfg.End.Format(time.DateOnly)),
		}
	}

	// Per period: one full grid plus the single out-of-sample re-test.
	perPeriod := int(sp.Size()) + 1
	total := len(periods) * perPeriod

	w.logger.Info("starting walk-forward search",
		zap.String("strategy", cfg.StrategyID),
		zap.Int("periods", len(periods)),
		zap.Int("in_sample_days", cfg.InSampleDays),
		zap.Int("out_sample_days", cfg.OutSampleDays),
		zap.Int("step_days", cfg.StepDays),
		zap.Int("total_trials", total),
	)

	results := make([]model.PeriodResult, 0, len(periods))
	cancelled := false

	for i, period := range periods {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		offset := i * perPeriod
		pr := w.runPeriod(ctx, cfg, sp, period, func(completed, _ int) {
			if progress != nil {
				progress(offset+completed, total)
			}
		})
		results = append(results, pr)

		if pr.Failed {
			w.logger.Warn("walk-forward period failed",
				zap.Int("period", i+1),
				zap.String("reason", pr.Error),
			)
			continue
		}
		w.logger.Info("walk-forward period done",
			zap.Int("period", i+1),
			zap.Float64("in_sharpe", pr.InMetrics.Sharpe),
			zap.Float64("out_sharpe", pr.OutMetrics.Sharpe),
			zap.Float64("degradation", pr.Degradation),
		)
	}

	return w.buildRecord(cfg, results, cancelled)
}

func (w *WalkForward) runPeriod(ctx context.Context, cfg model.RunConfig, sp *space.Space, period model.Period, progress scheduler.ProgressFunc) model.PeriodResult {
	pr := model.PeriodResult{Period: period}

	inCfg := cfg
	inCfg.Start = period.InStart
	inCfg.End = period.InEnd

	gridRec, err := w.grid.Run(ctx, inCfg, sp, progress)
	if err != nil {
		pr.Failed = true
		pr.Error = fmt.Sprintf("in-sample search: %v", err)
		return pr
	}

	pr.BestParams = gridRec.Best
	pr.InMetrics = gridRec.BestMetrics
	pr.Trials = gridRec.Trials

	// Single re-evaluation on the adjacent out-of-sample window, not a
	// search. The retest occupies the period's last progress slot.
	outTrial := model.Trial{
		StrategyID: cfg.StrategyID,
		Params:     gridRec.Best,
		Symbols:    cfg.Symbols,
		Start:      period.OutStart,
		End:        period.OutEnd,
		Capital:    cfg.Capital,
	}
	outRes := w.sched.RunAll(ctx, []model.Trial{outTrial}, func(completed, _ int) {
		if progress != nil {
			progress(int(sp.Size())+completed, 0)
		}
	})

	if len(outRes.Outcomes) == 0 {
		pr.Failed = true
		pr.Error = "out-of-sample test did not run"
		return pr
	}
	outcome := outRes.Outcomes[0].Outcome
	if !outcome.OK() {
		pr.Failed = true
		pr.Error = fmt.Sprintf("out-of-sample test: %s", outcome.Failure.Message)
		return pr
	}

	pr.OutMetrics = outcome.Metrics
	pr.Degradation = degradation(pr.InMetrics.Sharpe, pr.OutMetrics.Sharpe)
	return pr
}

func degradation(inSharpe, outSharpe float64) float64 {
	return (inSharpe - outSharpe) / math.Max(math.Abs(inSharpe), epsDegradation)
}

func (w *WalkForward) buildRecord(cfg model.RunConfig, results []model.PeriodResult, cancelled bool) (*model.RunRecord, error) {
	var (
		degradations []float64
		inSharpes    []float64
		outSharpes   []float64
		positive     int
		completed    int
	)
	for _, pr := range results {
		if pr.Failed {
			continue
		}
		completed++
		degradations = append(degradations, pr.Degradation)
		inSharpes = append(inSharpes, pr.InMetrics.Sharpe)
		outSharpes = append(outSharpes, pr.OutMetrics.Sharpe)
		if pr.OutMetrics.Sharpe > 0 {
			positive++
		}
	}

	if completed == 0 {
		return nil, &NoViableResultError{SearchKind: model.SearchWalkForward, Trials: len(results)}
	}

	stats := &model.WalkForwardStats{
		MeanDegradation:   mean(degradations),
		MedianDegradation: median(degradations),
		MeanInSharpe:      mean(inSharpes),
		MeanOutSharpe:     mean(outSharpes),
		PositiveOutRatio:  float64(positive) / float64(completed),
		Robust:            positive > 0,
	}

	bestPeriod := selectBestPeriod(results, stats.Robust)

	return &model.RunRecord{
		StrategyID:  cfg.StrategyID,
		SearchKind:  model.SearchWalkForward,
		Config:      cfg,
		Best:        bestPeriod.BestParams,
		BestMetrics: bestPeriod.OutMetrics,
		Periods:     results,
		WalkForward: stats,
		Cancelled:   cancelled,
	}, nil
}

// selectBestPeriod picks the period with the lowest degradation among those
// with a positive out-of-sample Sharpe, ties broken by higher out-of-sample
// Sharpe. When no period is out-of-sample positive the run is not robust and
// the least-bad period (highest out-of-sample Sharpe) is reported instead.
func selectBestPeriod(results []model.PeriodResult, robust bool) *model.PeriodResult {
	var pick *model.PeriodResult
	for i := range results {
		pr := &results[i]
		if pr.Failed {
			continue
		}
		if robust && pr.OutMetrics.Sharpe <= 0 {
			continue
		}
		if pick == nil {
			pick = pr
			continue
		}
		if robust {
			if pr.Degradation < pick.Degradation ||
				(pr.Degradation == pick.Degradation && pr.OutMetrics.Sharpe > pick.OutMetrics.Sharpe) {
				pick = pr
			}
		} else if pr.OutMetrics.Sharpe > pick.OutMetrics.Sharpe {
			pick = pr
		}
	}
	return pick
}
