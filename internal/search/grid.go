package search

import (
	"context"
	"time"

	"quant-optimizer/internal/model"
	"quant-optimizer/internal/scheduler"
	"quant-optimizer/internal/space"

	"go.uber.org/zap"
)

// Grid exhaustively evaluates every combination in the parameter space.
type Grid struct {
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

func NewGrid(sched *scheduler.Scheduler, logger *zap.Logger) *Grid {
	return &Grid{sched: sched, logger: logger}
}

// Run enumerates the space, schedules every combination as a trial and ranks
// the outcomes. A cancelled run still yields a best-effort record from the
// outcomes gathered so far, as long as at least one trial succeeded.
func (g *Grid) Run(ctx context.Context, cfg model.RunConfig, sp *space.Space, progress scheduler.ProgressFunc) (*model.RunRecord, error) {
	combos := sp.Enumerate()

	g.logger.Info("starting grid search",
		zap.String("strategy", cfg.StrategyID),
		zap.Int("combinations", len(combos)),
		zap.Strings("symbols", cfg.Symbols),
		zap.Time("start", cfg.Start),
		zap.Time("end", cfg.End),
	)

	trials := makeTrials(cfg, combos, cfg.Start, cfg.End)
	res := g.sched.RunAll(ctx, trials, progress)

	return buildRecord(model.SearchGrid, cfg, res)
}

// makeTrials binds combinations to the evaluation context of one run window,
// preserving enumeration order in Trial.Seq.
func makeTrials(cfg model.RunConfig, combos []model.Combination, start, end time.Time) []model.Trial {
	trials := make([]model.Trial, 0, len(combos))
	for i, combo := range combos {
		trials = append(trials, model.Trial{
			Seq:        i,
			StrategyID: cfg.StrategyID,
			Params:     combo,
			Symbols:    cfg.Symbols,
			Start:      start,
			End:        end,
			Capital:    cfg.Capital,
		})
	}
	return trials
}

// buildRecord ranks scheduler outcomes into a RunRecord, failing with
// NoViableResultError when nothing succeeded.
func buildRecord(kind string, cfg model.RunConfig, res *scheduler.Result) (*model.RunRecord, error) {
	top := best(res.Outcomes)
	if top == nil {
		return nil, &NoViableResultError{SearchKind: kind, Trials: len(res.Outcomes)}
	}

	return &model.RunRecord{
		StrategyID:  cfg.StrategyID,
		SearchKind:  kind,
		Config:      cfg,
		Best:        top.Trial.Params,
		BestMetrics: top.Outcome.Metrics,
		Trials:      res.Outcomes,
		Summary:     summarize(res.Outcomes),
		Cancelled:   res.Cancelled,
	}, nil
}
