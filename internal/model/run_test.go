package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatRunID(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 30, 45, 0, time.UTC)

	assert.Equal(t, "ma_cross_grid_20240315T093045Z", FormatRunID("ma_cross", SearchGrid, ts, 0))
	assert.Equal(t, "ma_cross_grid_20240315T093045Z_1", FormatRunID("ma_cross", SearchGrid, ts, 1))
	assert.Equal(t, "ma_cross_grid_20240315T093045Z_2", FormatRunID("ma_cross", SearchGrid, ts, 2))
}

func TestFormatRunID_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	local := time.Date(2024, 3, 15, 17, 30, 45, 0, loc)
	utc := time.Date(2024, 3, 15, 9, 30, 45, 0, time.UTC)

	assert.Equal(t, FormatRunID("ma", SearchAdaptive, utc, 0), FormatRunID("ma", SearchAdaptive, local, 0))
}

func TestCombinationKey_StableAcrossOrder(t *testing.T) {
	a := Combination{"short_period": 5, "long_period": 20}
	b := Combination{"long_period": 20, "short_period": 5}

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "long_period=20,short_period=5", a.Key())
}

func TestCombinationClone_Independent(t *testing.T) {
	orig := Combination{"p": 1}
	clone := orig.Clone()
	clone["p"] = 2

	assert.Equal(t, 1.0, orig["p"])
	assert.Equal(t, 2.0, clone["p"])
}

func TestIndexEntry_ProjectsBestMetrics(t *testing.T) {
	rec := &RunRecord{
		RunID:      "ma_grid_20240315T093045Z",
		CreatedAt:  time.Date(2024, 3, 15, 9, 30, 45, 0, time.UTC),
		StrategyID: "ma",
		SearchKind: SearchGrid,
		Config: RunConfig{
			Symbols: []string{"BTCUSDT"},
			Start:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		BestMetrics: &MetricsRecord{
			Sharpe:      1.8,
			TotalReturn: decimal.NewFromFloat(0.42),
		},
	}

	e := rec.IndexEntry()
	assert.Equal(t, rec.RunID, e.RunID)
	assert.Equal(t, "ma", e.StrategyID)
	assert.Equal(t, SearchGrid, e.SearchKind)
	assert.Equal(t, 1.8, e.BestSharpe)
	assert.True(t, decimal.NewFromFloat(0.42).Equal(e.BestReturn))
	assert.Equal(t, []string{"BTCUSDT"}, e.Symbols)
}

func TestIndexEntry_NoBestMetrics(t *testing.T) {
	rec := &RunRecord{RunID: "x", StrategyID: "ma", SearchKind: SearchGrid}
	e := rec.IndexEntry()
	assert.Equal(t, 0.0, e.BestSharpe)
	assert.True(t, e.BestReturn.IsZero())
}

func TestTrialOutcomeOK(t *testing.T) {
	ok := TrialOutcome{Metrics: &MetricsRecord{Sharpe: 1}}
	failed := TrialOutcome{Failure: &TrialFailure{Code: FailureTimeout, Message: "too slow"}}

	assert.True(t, ok.OK())
	assert.False(t, failed.OK())
	assert.False(t, TrialOutcome{}.OK())
}
