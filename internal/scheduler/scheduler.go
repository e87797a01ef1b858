package scheduler

import (
	"context"
	"runtime"
	"time"

	"quant-optimizer/internal/evaluator"
	"quant-optimizer/internal/infrastructure"
	"quant-optimizer/internal/model"

	"go.uber.org/zap"
)

// ProgressFunc is invoked after every trial completion, in completion order.
// total is -1 when the producing strategy cannot know it up front.
type ProgressFunc func(completed, total int)

// Result is everything a run of the scheduler produced. Outcomes are in
// completion order, not submission order, since trials run concurrently.
type Result struct {
	Outcomes  []model.TrialResult
	Cancelled bool
}

// Scheduler executes a stream of trials against the trial evaluator under a
// bounded concurrency level. It is agnostic of which search strategy
// produced the trials.
type Scheduler struct {
	eval    *evaluator.TrialEvaluator
	workers int
	logger  *zap.Logger
}

func New(eval *evaluator.TrialEvaluator, workers int, logger *zap.Logger) *Scheduler {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Scheduler{
		eval:    eval,
		workers: workers,
		logger:  logger,
	}
}

func (s *Scheduler) Workers() int {
	return s.workers
}

// Run consumes trials until the channel is closed or ctx is cancelled.
// Cancellation is cooperative: no new trials are started afterwards, but
// in-flight trials finish (or hit the per-trial timeout) and their outcomes
// are still collected.
func (s *Scheduler) Run(ctx context.Context, trials <-chan model.Trial, total int, progress ProgressFunc) *Result {
	out := make(chan model.TrialResult, s.workers)
	done := make(chan struct{})

	active := make(chan struct{}, s.workers)
	for i := 0; i < s.workers; i++ {
		active <- struct{}{}
		go func(id int) {
			defer func() { <-active }()
			s.worker(ctx, id, trials, out)
		}(i)
	}

	// Close the outcome channel once every worker has drained.
	go func() {
		for i := 0; i < s.workers; i++ {
			active <- struct{}{}
		}
		close(out)
		close(done)
	}()

	result := &Result{}
	completed := 0
	for res := range out {
		completed++
		result.Outcomes = append(result.Outcomes, res)
		if progress != nil {
			progress(completed, total)
		}
	}
	<-done

	if ctx.Err() != nil {
		result.Cancelled = true
		s.logger.Info("scheduler run cancelled",
			zap.Int("completed", completed),
			zap.Int("total", total),
		)
	}
	return result
}

// RunAll is a convenience wrapper for strategies that hold the full trial
// list up front.
func (s *Scheduler) RunAll(ctx context.Context, trials []model.Trial, progress ProgressFunc) *Result {
	return s.Run(ctx, Feed(ctx, trials), len(trials), progress)
}

func (s *Scheduler) worker(ctx context.Context, id int, trials <-chan model.Trial, out chan<- model.TrialResult) {
	for {
		// Cancellation is checked at the trial-submission boundary only;
		// never forwarded into the evaluator call.
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case trial, ok := <-trials:
			if !ok {
				return
			}

			start := time.Now()
			infrastructure.ActiveWorkers.Inc()
			outcome := s.eval.Run(trial)
			infrastructure.ActiveWorkers.Dec()
			infrastructure.TrialDuration.Observe(time.Since(start).Seconds())

			status := "ok"
			if outcome.Failure != nil {
				status = outcome.Failure.Code
			}
			infrastructure.TrialsCompleted.WithLabelValues(status).Inc()

			s.logger.Debug("trial completed",
				zap.Int("worker_id", id),
				zap.Int("seq", trial.Seq),
				zap.String("params", trial.Params.Key()),
				zap.String("status", status),
				zap.Duration("took", time.Since(start)),
			)

			out <- model.TrialResult{Trial: trial, Outcome: outcome}
		}
	}
}

// Feed turns a trial slice into the lazy channel the scheduler consumes,
// stopping early when ctx is cancelled so the producer never leaks.
func Feed(ctx context.Context, trials []model.Trial) <-chan model.Trial {
	ch := make(chan model.Trial)
	go func() {
		defer close(ch)
		for _, t := range trials {
			select {
			case <-ctx.Done():
				return
			case ch <- t:
			}
		}
	}()
	return ch
}
