package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"quant-optimizer/internal/evaluator"
	"quant-optimizer/internal/model"
	"quant-optimizer/internal/space"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var wfStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func wfConfig(totalDays, inDays, outDays, stepDays int) model.RunConfig {
	return model.RunConfig{
		StrategyID:    "ma",
		SearchKind:    model.SearchWalkForward,
		Symbols:       []string{"BTCUSDT"},
		Start:         wfStart,
		End:           wfStart.AddDate(0, 0, totalDays),
		Capital:       decimal.NewFromInt(10000),
		InSampleDays:  inDays,
		OutSampleDays: outDays,
		StepDays:      stepDays,
	}
}

func TestGeneratePeriods_RollsForward(t *testing.T) {
	// 100-day range, 60 in / 20 out stepping 20: two periods fit, the third
	// would need day 120.
	periods, err := GeneratePeriods(wfStart, wfStart.AddDate(0, 0, 100), 60, 20, 20)
	require.NoError(t, err)
	require.Len(t, periods, 2)

	assert.Equal(t, wfStart, periods[0].InStart)
	assert.Equal(t, wfStart.AddDate(0, 0, 60), periods[0].InEnd)
	assert.Equal(t, wfStart.AddDate(0, 0, 60), periods[0].OutStart)
	assert.Equal(t, wfStart.AddDate(0, 0, 80), periods[0].OutEnd)

	assert.Equal(t, wfStart.AddDate(0, 0, 20), periods[1].InStart)
	assert.Equal(t, wfStart.AddDate(0, 0, 80), periods[1].InEnd)
	assert.Equal(t, wfStart.AddDate(0, 0, 80), periods[1].OutStart)
	assert.Equal(t, wfStart.AddDate(0, 0, 100), periods[1].OutEnd)
}

func TestGeneratePeriods_Contiguity(t *testing.T) {
	periods, err := GeneratePeriods(wfStart, wfStart.AddDate(0, 0, 365), 90, 30, 30)
	require.NoError(t, err)
	require.NotEmpty(t, periods)

	for _, p := range periods {
		assert.True(t, p.InStart.Before(p.InEnd))
		assert.Equal(t, p.InEnd, p.OutStart, "out-of-sample must start where in-sample ends")
		assert.True(t, p.OutStart.Before(p.OutEnd))
	}
}

func TestGeneratePeriods_Deterministic(t *testing.T) {
	a, err := GeneratePeriods(wfStart, wfStart.AddDate(0, 0, 365), 90, 30, 30)
	require.NoError(t, err)
	b, err := GeneratePeriods(wfStart, wfStart.AddDate(0, 0, 365), 90, 30, 30)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGeneratePeriods_Invalid(t *testing.T) {
	end := wfStart.AddDate(0, 0, 100)

	var cfgErr *model.InvalidConfigError
	_, err := GeneratePeriods(wfStart, end, 0, 20, 20)
	assert.True(t, errors.As(err, &cfgErr))
	_, err = GeneratePeriods(wfStart, end, 60, -1, 20)
	assert.True(t, errors.As(err, &cfgErr))
	_, err = GeneratePeriods(wfStart, end, 60, 20, 0)
	assert.True(t, errors.As(err, &cfgErr))
	_, err = GeneratePeriods(end, wfStart, 60, 20, 20)
	assert.True(t, errors.As(err, &cfgErr))
}

func TestGeneratePeriods_WindowsDoNotFit(t *testing.T) {
	periods, err := GeneratePeriods(wfStart, wfStart.AddDate(0, 0, 30), 60, 20, 20)
	require.NoError(t, err)
	assert.Empty(t, periods)
}

// windowSharpe scores by parameter scaled down on the short out-of-sample
// window, so every period degrades by exactly half.
func windowSharpe(_ context.Context, _ string, params model.Combination, _ []string,
	start, end time.Time, _ decimal.Decimal) (*model.MetricsRecord, error) {
	days := end.Sub(start).Hours() / 24
	sharpe := params["p"] / 10
	if days <= 20 {
		sharpe = params["p"] / 20
	}
	return &model.MetricsRecord{Sharpe: sharpe, TotalReturn: decimal.NewFromFloat(sharpe)}, nil
}

func wfSpace(t *testing.T) *space.Space {
	t.Helper()
	sp, err := space.New([]model.ParameterSpec{
		{Name: "p", Kind: model.KindDiscrete, Values: []float64{1, 2}},
	})
	require.NoError(t, err)
	return sp
}

func TestWalkForward_DegradationPerPeriod(t *testing.T) {
	wf := NewWalkForward(newScheduler(evaluator.Func(windowSharpe), 2), zap.NewNop())

	rec, err := wf.Run(context.Background(), wfConfig(100, 60, 20, 20), wfSpace(t), nil)
	require.NoError(t, err)

	require.Len(t, rec.Periods, 2)
	for _, pr := range rec.Periods {
		require.False(t, pr.Failed)
		assert.Equal(t, model.Combination{"p": 2}, pr.BestParams)
		assert.InDelta(t, 0.2, pr.InMetrics.Sharpe, 1e-9)
		assert.InDelta(t, 0.1, pr.OutMetrics.Sharpe, 1e-9)
		// (0.2 - 0.1) / 0.2
		assert.InDelta(t, 0.5, pr.Degradation, 1e-9)
	}

	require.NotNil(t, rec.WalkForward)
	assert.InDelta(t, 0.5, rec.WalkForward.MeanDegradation, 1e-9)
	assert.InDelta(t, 0.5, rec.WalkForward.MedianDegradation, 1e-9)
	assert.Equal(t, 1.0, rec.WalkForward.PositiveOutRatio)
	assert.True(t, rec.WalkForward.Robust)

	// Reported best comes from the out-of-sample window, not the in-sample
	// search.
	assert.InDelta(t, 0.1, rec.BestMetrics.Sharpe, 1e-9)
	assert.Equal(t, model.Combination{"p": 2}, rec.Best)
}

func TestWalkForward_ProgressReachesTotal(t *testing.T) {
	wf := NewWalkForward(newScheduler(evaluator.Func(windowSharpe), 2), zap.NewNop())

	var calls []int
	var lastTotal int
	rec, err := wf.Run(context.Background(), wfConfig(100, 60, 20, 20), wfSpace(t), func(completed, total int) {
		calls = append(calls, completed)
		lastTotal = total
	})
	require.NoError(t, err)
	require.Len(t, rec.Periods, 2)

	// Two periods, each two in-sample trials plus the out-of-sample retest:
	// every completion is reported and the final value equals the total.
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, calls)
	assert.Equal(t, 6, lastTotal)
}

func TestWalkForward_NotRobustStillCompletes(t *testing.T) {
	backend := evaluator.Func(func(_ context.Context, _ string, params model.Combination, _ []string,
		start, end time.Time, _ decimal.Decimal) (*model.MetricsRecord, error) {
		days := end.Sub(start).Hours() / 24
		sharpe := params["p"] / 10
		if days <= 20 {
			sharpe = -params["p"] / 20
		}
		return &model.MetricsRecord{Sharpe: sharpe}, nil
	})
	wf := NewWalkForward(newScheduler(backend, 2), zap.NewNop())

	rec, err := wf.Run(context.Background(), wfConfig(100, 60, 20, 20), wfSpace(t), nil)
	require.NoError(t, err)

	require.NotNil(t, rec.WalkForward)
	assert.False(t, rec.WalkForward.Robust)
	assert.Equal(t, 0.0, rec.WalkForward.PositiveOutRatio)
	// Least-bad period is still reported.
	require.NotNil(t, rec.BestMetrics)
	assert.InDelta(t, -0.1, rec.BestMetrics.Sharpe, 1e-9)
}

func TestWalkForward_FailedPeriodRecordedNotDropped(t *testing.T) {
	backend := evaluator.Func(func(_ context.Context, _ string, params model.Combination, _ []string,
		start, end time.Time, _ decimal.Decimal) (*model.MetricsRecord, error) {
		// First period's in-sample windows start at wfStart; fail those.
		if start.Equal(wfStart) {
			return nil, errors.New("exchange outage in january")
		}
		return windowSharpe(nil, "", params, nil, start, end, decimal.Zero)
	})
	wf := NewWalkForward(newScheduler(backend, 2), zap.NewNop())

	rec, err := wf.Run(context.Background(), wfConfig(100, 60, 20, 20), wfSpace(t), nil)
	require.NoError(t, err)

	require.Len(t, rec.Periods, 2)
	assert.True(t, rec.Periods[0].Failed)
	assert.Contains(t, rec.Periods[0].Error, "in-sample search")
	assert.False(t, rec.Periods[1].Failed)

	// Stats only cover the surviving period.
	assert.Equal(t, 1.0, rec.WalkForward.PositiveOutRatio)
}

func TestWalkForward_AllPeriodsFailed(t *testing.T) {
	backend := evaluator.Func(func(_ context.Context, _ string, _ model.Combination, _ []string,
		_, _ time.Time, _ decimal.Decimal) (*model.MetricsRecord, error) {
		return nil, errors.New("no data at all")
	})
	wf := NewWalkForward(newScheduler(backend, 2), zap.NewNop())

	_, err := wf.Run(context.Background(), wfConfig(100, 60, 20, 20), wfSpace(t), nil)

	var noViable *NoViableResultError
	require.True(t, errors.As(err, &noViable))
	assert.Equal(t, model.SearchWalkForward, noViable.SearchKind)
}

func TestWalkForward_WindowsTooLargeForRange(t *testing.T) {
	wf := NewWalkForward(newScheduler(evaluator.Func(windowSharpe), 2), zap.NewNop())

	_, err := wf.Run(context.Background(), wfConfig(30, 60, 20, 20), wfSpace(t), nil)
	require.Error(t, err)
	var cfgErr *model.InvalidConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "do not fit")
}

func TestDegradation_ClampsNearZeroInSample(t *testing.T) {
	// In-sample Sharpe of zero must not divide by zero; the denominator is
	// clamped to 1e-3.
	assert.InDelta(t, 100, degradation(0, -0.1), 1e-9)
	assert.InDelta(t, 0.5, degradation(0.2, 0.1), 1e-9)
	// Sign preserved for improvement out of sample.
	assert.InDelta(t, -0.5, degradation(0.2, 0.3), 1e-9)
}
