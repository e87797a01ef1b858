package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"quant-optimizer/internal/evaluator"
	"quant-optimizer/internal/model"
	"quant-optimizer/internal/scheduler"
	"quant-optimizer/internal/space"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func gridConfig() model.RunConfig {
	return model.RunConfig{
		StrategyID: "ma",
		SearchKind: model.SearchGrid,
		Symbols:    []string{"BTCUSDT"},
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Capital:    decimal.NewFromInt(10000),
	}
}

func newScheduler(backend evaluator.Evaluator, workers int) *scheduler.Scheduler {
	eval := evaluator.NewTrialEvaluator(backend, time.Second, zap.NewNop())
	return scheduler.New(eval, workers, zap.NewNop())
}

// sharpeByProduct scores each combination p*q/100, so the ranking is fully
// determined by the parameters.
func sharpeByProduct(_ context.Context, _ string, params model.Combination, _ []string,
	_, _ time.Time, _ decimal.Decimal) (*model.MetricsRecord, error) {
	sharpe := params["p"] * params["q"] / 100
	return &model.MetricsRecord{
		Sharpe:      sharpe,
		TotalReturn: decimal.NewFromFloat(sharpe * 2),
		MaxDrawdown: -0.1,
	}, nil
}

func TestGrid_FindsBestCombination(t *testing.T) {
	sp, err := space.New([]model.ParameterSpec{
		{Name: "p", Kind: model.KindDiscrete, Values: []float64{1, 2}},
		{Name: "q", Kind: model.KindDiscrete, Values: []float64{10, 20}},
	})
	require.NoError(t, err)

	grid := NewGrid(newScheduler(evaluator.Func(sharpeByProduct), 4), zap.NewNop())
	rec, err := grid.Run(context.Background(), gridConfig(), sp, nil)
	require.NoError(t, err)

	assert.Equal(t, model.Combination{"p": 2, "q": 20}, rec.Best)
	assert.InDelta(t, 0.40, rec.BestMetrics.Sharpe, 1e-9)
	assert.Len(t, rec.Trials, 4)
	assert.False(t, rec.Cancelled)

	require.NotNil(t, rec.Summary)
	assert.Equal(t, 4, rec.Summary.Succeeded)
	assert.Equal(t, 0, rec.Summary.Failed)
	assert.InDelta(t, 0.40, rec.Summary.MaxSharpe, 1e-9)
	assert.InDelta(t, 0.10, rec.Summary.MinSharpe, 1e-9)
}

func TestGrid_SameResultRegardlessOfWorkerCount(t *testing.T) {
	sp, err := space.New([]model.ParameterSpec{
		{Name: "p", Kind: model.KindDiscrete, Values: []float64{1, 2, 3, 4, 5}},
		{Name: "q", Kind: model.KindDiscrete, Values: []float64{10, 20, 30}},
	})
	require.NoError(t, err)

	var bests []model.Combination
	for _, workers := range []int{1, 4, 16} {
		grid := NewGrid(newScheduler(evaluator.Func(sharpeByProduct), workers), zap.NewNop())
		rec, err := grid.Run(context.Background(), gridConfig(), sp, nil)
		require.NoError(t, err)
		bests = append(bests, rec.Best)
	}

	assert.Equal(t, bests[0], bests[1])
	assert.Equal(t, bests[1], bests[2])
}

func TestGrid_SurvivesPartialFailures(t *testing.T) {
	backend := evaluator.Func(func(_ context.Context, _ string, params model.Combination, _ []string,
		_, _ time.Time, _ decimal.Decimal) (*model.MetricsRecord, error) {
		if params["p"] == 2 {
			return nil, errors.New("window has no data")
		}
		return &model.MetricsRecord{Sharpe: params["p"]}, nil
	})

	sp, err := space.New([]model.ParameterSpec{
		{Name: "p", Kind: model.KindDiscrete, Values: []float64{1, 2, 3}},
	})
	require.NoError(t, err)

	grid := NewGrid(newScheduler(backend, 2), zap.NewNop())
	rec, err := grid.Run(context.Background(), gridConfig(), sp, nil)
	require.NoError(t, err)

	assert.Equal(t, model.Combination{"p": 3}, rec.Best)
	assert.Equal(t, 1, rec.Summary.Failed)
	assert.Equal(t, 2, rec.Summary.Succeeded)
}

func TestGrid_AllTrialsFailed(t *testing.T) {
	backend := evaluator.Func(func(_ context.Context, _ string, _ model.Combination, _ []string,
		_, _ time.Time, _ decimal.Decimal) (*model.MetricsRecord, error) {
		return nil, errors.New("broken backend")
	})

	sp, err := space.New([]model.ParameterSpec{
		{Name: "p", Kind: model.KindDiscrete, Values: []float64{1, 2}},
	})
	require.NoError(t, err)

	grid := NewGrid(newScheduler(backend, 2), zap.NewNop())
	_, err = grid.Run(context.Background(), gridConfig(), sp, nil)

	var noViable *NoViableResultError
	require.True(t, errors.As(err, &noViable))
	assert.Equal(t, model.SearchGrid, noViable.SearchKind)
	assert.Equal(t, 2, noViable.Trials)
}

func TestGrid_ProgressReachesTotal(t *testing.T) {
	sp, err := space.New([]model.ParameterSpec{
		{Name: "p", Kind: model.KindDiscrete, Values: []float64{1, 2, 3}},
		{Name: "q", Kind: model.KindDiscrete, Values: []float64{10, 20}},
	})
	require.NoError(t, err)

	var last, total int
	grid := NewGrid(newScheduler(evaluator.Func(sharpeByProduct), 3), zap.NewNop())
	_, err = grid.Run(context.Background(), gridConfig(), sp, func(completed, t int) {
		last, total = completed, t
	})
	require.NoError(t, err)

	assert.Equal(t, 6, last)
	assert.Equal(t, 6, total)
}
