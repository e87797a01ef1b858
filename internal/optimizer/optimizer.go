package optimizer

import (
	"context"
	"fmt"
	"time"

	"quant-optimizer/internal/evaluator"
	"quant-optimizer/internal/events"
	"quant-optimizer/internal/infrastructure"
	"quant-optimizer/internal/model"
	"quant-optimizer/internal/scheduler"
	"quant-optimizer/internal/search"
	"quant-optimizer/internal/space"
	"quant-optimizer/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultMaxCombinations = 100_000
	defaultCapital         = 100_000
)

// SamplerFactory builds the suggestion backend for an adaptive run. The
// default draws uniformly over the declared space; real backends (TPE and
// friends) plug in through the same hook.
type SamplerFactory func(sp *space.Space) search.Sampler

// Optimizer binds a run configuration to a search strategy, drives it
// through the scheduler, and persists the outcome.
type Optimizer struct {
	store      *store.Store
	eval       evaluator.Evaluator
	publisher  *events.Publisher
	newSampler SamplerFactory
	logger     *zap.Logger
}

type Option func(*Optimizer)

// WithSamplerFactory overrides the adaptive search backend.
func WithSamplerFactory(f SamplerFactory) Option {
	return func(o *Optimizer) { o.newSampler = f }
}

// WithPublisher attaches a run-completion event publisher.
func WithPublisher(p *events.Publisher) Option {
	return func(o *Optimizer) { o.publisher = p }
}

func New(st *store.Store, eval evaluator.Evaluator, logger *zap.Logger, opts ...Option) *Optimizer {
	o := &Optimizer{
		store:  st,
		eval:   eval,
		logger: logger,
		newSampler: func(sp *space.Space) search.Sampler {
			return search.NewRandomSampler(sp, time.Now().UnixNano())
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one full optimization invocation and persists the resulting
// RunRecord. Configuration problems fail before any trial runs; a search
// with zero viable trials propagates NoViableResultError and persists
// nothing; a cancelled run persists its partial record flagged cancelled.
func (o *Optimizer) Run(ctx context.Context, cfg model.RunConfig, progress scheduler.ProgressFunc) (*model.RunRecord, error) {
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	sp, err := space.New(cfg.Specs)
	if err != nil {
		return nil, err
	}

	ceiling := cfg.MaxCombinations
	if ceiling <= 0 {
		ceiling = defaultMaxCombinations
	}
	if cfg.SearchKind != model.SearchAdaptive && sp.Size() > int64(ceiling) {
		return nil, &model.InvalidConfigError{
			Reason: fmt.Sprintf("parameter space has %d combinations, exceeds ceiling %d", sp.Size(), ceiling),
		}
	}

	trialEval := evaluator.NewTrialEvaluator(o.eval, cfg.TrialTimeout(), o.logger)
	sched := scheduler.New(trialEval, cfg.Concurrency, o.logger)

	o.logger.Info("optimization run starting",
		zap.String("strategy", cfg.StrategyID),
		zap.String("kind", cfg.SearchKind),
		zap.Int64("space_size", sp.Size()),
		zap.Int("workers", sched.Workers()),
	)
	started := time.Now()

	var rec *model.RunRecord
	switch cfg.SearchKind {
	case model.SearchGrid:
		rec, err = search.NewGrid(sched, o.logger).Run(ctx, cfg, sp, progress)
	case model.SearchWalkForward:
		rec, err = search.NewWalkForward(sched, o.logger).Run(ctx, cfg, sp, progress)
	case model.SearchAdaptive:
		rec, err = search.NewAdaptive(sched, o.logger).Run(ctx, cfg, o.newSampler(sp), progress)
	default:
		return nil, &model.InvalidConfigError{Reason: fmt.Sprintf("unsupported search kind %q", cfg.SearchKind)}
	}
	if err != nil {
		return nil, err
	}

	rec.CreatedAt = time.Now().UTC()
	runID, err := o.store.Save(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	infrastructure.RunsCompleted.WithLabelValues(cfg.SearchKind).Inc()
	o.publisher.RunCompleted(rec.IndexEntry())

	o.logger.Info("optimization run finished",
		zap.String("run_id", runID),
		zap.Duration("took", time.Since(started)),
		zap.Bool("cancelled", rec.Cancelled),
	)
	return rec, nil
}

func validate(cfg *model.RunConfig) error {
	if cfg.StrategyID == "" {
		return &model.InvalidConfigError{Reason: "strategy id is required"}
	}
	if len(cfg.Symbols) == 0 {
		return &model.InvalidConfigError{Reason: "at least one symbol is required"}
	}
	if !cfg.Start.Before(cfg.End) {
		return &model.InvalidConfigError{
			Reason: fmt.Sprintf("date window is empty (%s >= %s)", cfg.Start.Format(time.DateOnly), cfg.End.Format(time.DateOnly)),
		}
	}
	if cfg.Capital.IsZero() {
		cfg.Capital = decimal.NewFromInt(defaultCapital)
	}
	if cfg.Capital.IsNegative() {
		return &model.InvalidConfigError{Reason: fmt.Sprintf("capital must be positive, got %s", cfg.Capital)}
	}
	switch cfg.SearchKind {
	case model.SearchGrid, model.SearchWalkForward, model.SearchAdaptive:
		return nil
	default:
		return &model.InvalidConfigError{Reason: fmt.Sprintf("unsupported search kind %q", cfg.SearchKind)}
	}
}
