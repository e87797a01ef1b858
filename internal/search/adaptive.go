package search

import (
	"context"
	"math/rand"
	"time"

	"quant-optimizer/internal/model"
	"quant-optimizer/internal/scheduler"
	"quant-optimizer/internal/space"

	"go.uber.org/zap"
)

// failureScore is reported to the sampler for failed trials. A large
// negative sentinel keeps the suggestion loop alive instead of surfacing an
// error that would stop it.
const failureScore = -1e9

// defaultTrialBudget mirrors the usual suggestion-based search default when
// neither a trial nor a time budget is configured.
const defaultTrialBudget = 100

// Sampler is the pluggable suggestion backend. The adapter never branches
// on backend identity; anything with suggest/report semantics fits.
type Sampler interface {
	Suggest() model.Combination
	Report(combo model.Combination, score float64)
}

// Adaptive bridges a Sampler into the same trial vocabulary as the other
// strategies: suggest, evaluate through the scheduler, report the scalar
// score back, repeat until the trial or time budget is exhausted.
type Adaptive struct {
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

func NewAdaptive(sched *scheduler.Scheduler, logger *zap.Logger) *Adaptive {
	return &Adaptive{sched: sched, logger: logger}
}

func (a *Adaptive) Run(ctx context.Context, cfg model.RunConfig, sampler Sampler, progress scheduler.ProgressFunc) (*model.RunRecord, error) {
	budget := cfg.TrialBudget
	timeBudget := cfg.TimeBudget()
	if budget <= 0 && timeBudget <= 0 {
		budget = defaultTrialBudget
	}

	// In time-budgeted mode the total trial count is unknown up front.
	total := budget
	if budget <= 0 {
		total = -1
	}

	var deadline time.Time
	if timeBudget > 0 {
		deadline = time.Now().Add(timeBudget)
	}

	a.logger.Info("starting adaptive search",
		zap.String("strategy", cfg.StrategyID),
		zap.Int("trial_budget", budget),
		zap.Duration("time_budget", timeBudget),
	)

	var outcomes []model.TrialResult
	cancelled := false

	for i := 0; ; i++ {
		if budget > 0 && i >= budget {
			break
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			break
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		// Duplicate suggestions are evaluated again, not rejected: the
		// backend owns its exploration policy.
		combo := sampler.Suggest()
		trial := model.Trial{
			Seq:        i,
			StrategyID: cfg.StrategyID,
			Params:     combo,
			Symbols:    cfg.Symbols,
			Start:      cfg.Start,
			End:        cfg.End,
			Capital:    cfg.Capital,
		}

		res := a.sched.RunAll(ctx, []model.Trial{trial}, nil)
		if res.Cancelled {
			cancelled = true
		}
		if len(res.Outcomes) == 0 {
			break
		}

		result := res.Outcomes[0]
		outcomes = append(outcomes, result)

		score := failureScore
		if result.Outcome.OK() {
			score = result.Outcome.Metrics.Sharpe
		}
		sampler.Report(combo, score)

		if progress != nil {
			progress(len(outcomes), total)
		}
	}

	rec, err := buildRecord(model.SearchAdaptive, cfg, &scheduler.Result{Outcomes: outcomes, Cancelled: cancelled})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RandomSampler is the reference Sampler: uniform draws over the declared
// space, report is a no-op. Real backends plug in the same way.
type RandomSampler struct {
	space *space.Space
	rng   *rand.Rand
}

func NewRandomSampler(sp *space.Space, seed int64) *RandomSampler {
	return &RandomSampler{
		space: sp,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (s *RandomSampler) Suggest() model.Combination {
	return s.space.Random(s.rng)
}

func (s *RandomSampler) Report(model.Combination, float64) {}
