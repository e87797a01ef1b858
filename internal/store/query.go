package store

import (
	"fmt"
	"sort"
	"time"

	"quant-optimizer/internal/model"

	"github.com/shopspring/decimal"
)

// Filter narrows a List call. Zero values mean "no constraint".
type Filter struct {
	StrategyID string
	SearchKind string
	MinSharpe  *float64
	From       time.Time // CreatedAt >= From
	To         time.Time // CreatedAt <= To

	// SortBy selects any index field: run_id, created_at, strategy_id,
	// search_kind, best_sharpe, best_return. Empty means newest-first.
	SortBy    string
	Ascending bool
}

func (f Filter) matches(e model.RunIndexEntry) bool {
	if f.StrategyID != "" && e.StrategyID != f.StrategyID {
		return false
	}
	if f.SearchKind != "" && e.SearchKind != f.SearchKind {
		return false
	}
	if f.MinSharpe != nil && e.BestSharpe < *f.MinSharpe {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// List returns the index entries matching the filter, sorted as requested
// (default: newest first).
func (s *Store) List(f Filter) ([]model.RunIndexEntry, error) {
	entries, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	matched := make([]model.RunIndexEntry, 0, len(entries))
	for _, e := range entries {
		if f.matches(e) {
			matched = append(matched, e)
		}
	}

	less, err := sortFunc(f.SortBy)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if f.SortBy == "" {
			// Newest first.
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		if f.Ascending {
			return less(matched[i], matched[j])
		}
		return less(matched[j], matched[i])
	})
	return matched, nil
}

func sortFunc(field string) (func(a, b model.RunIndexEntry) bool, error) {
	switch field {
	case "", "created_at":
		return func(a, b model.RunIndexEntry) bool { return a.CreatedAt.Before(b.CreatedAt) }, nil
	case "run_id":
		return func(a, b model.RunIndexEntry) bool { return a.RunID < b.RunID }, nil
	case "strategy_id":
		return func(a, b model.RunIndexEntry) bool { return a.StrategyID < b.StrategyID }, nil
	case "search_kind":
		return func(a, b model.RunIndexEntry) bool { return a.SearchKind < b.SearchKind }, nil
	case "best_sharpe":
		return func(a, b model.RunIndexEntry) bool { return a.BestSharpe < b.BestSharpe }, nil
	case "best_return":
		return func(a, b model.RunIndexEntry) bool { return a.BestReturn.LessThan(b.BestReturn) }, nil
	default:
		return nil, &InvalidArgumentError{Reason: fmt.Sprintf("unknown sort field %q", field)}
	}
}

// ComparisonRow is one run's best metrics and parameters.
type ComparisonRow struct {
	RunID      string            `json:"run_id"`
	StrategyID string            `json:"strategy_id"`
	SearchKind string            `json:"search_kind"`
	CreatedAt  time.Time         `json:"created_at"`
	Sharpe     float64           `json:"sharpe"`
	Return     decimal.Decimal   `json:"return"`
	Drawdown   float64           `json:"drawdown"`
	WinRate    float64           `json:"win_rate"`
	Trades     int               `json:"trades"`
	Params     model.Combination `json:"params"`
}

// Comparison aligns 2-5 runs side by side.
type Comparison struct {
	Runs []ComparisonRow `json:"runs"`
}

// Compare loads 2 to 5 runs and aligns their best metrics and parameters.
// An unknown id is an InvalidArgumentError, same as a bad arity.
func (s *Store) Compare(runIDs []string) (*Comparison, error) {
	if len(runIDs) < 2 || len(runIDs) > 5 {
		return nil, &InvalidArgumentError{
			Reason: fmt.Sprintf("compare requires 2 to 5 run ids, got %d", len(runIDs)),
		}
	}

	cmp := &Comparison{Runs: make([]ComparisonRow, 0, len(runIDs))}
	for _, id := range runIDs {
		rec, err := s.Get(id)
		if err != nil {
			if _, ok := err.(*NotFoundError); ok {
				return nil, &InvalidArgumentError{Reason: fmt.Sprintf("run %q not found", id)}
			}
			return nil, err
		}

		row := ComparisonRow{
			RunID:      rec.RunID,
			StrategyID: rec.StrategyID,
			SearchKind: rec.SearchKind,
			CreatedAt:  rec.CreatedAt,
			Params:     rec.Best,
		}
		if rec.BestMetrics != nil {
			row.Sharpe = rec.BestMetrics.Sharpe
			row.Return = rec.BestMetrics.TotalReturn
			row.Drawdown = rec.BestMetrics.MaxDrawdown
			row.WinRate = rec.BestMetrics.WinRate
			row.Trades = rec.BestMetrics.Trades
		}
		cmp.Runs = append(cmp.Runs, row)
	}
	return cmp, nil
}

// Best returns the index entry with the highest best-Sharpe among runs
// matching the filter, or NotFoundError when nothing matches.
func (s *Store) Best(f Filter) (*model.RunIndexEntry, error) {
	entries, err := s.List(f)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &NotFoundError{RunID: "(best)"}
	}

	top := entries[0]
	for _, e := range entries[1:] {
		if e.BestSharpe > top.BestSharpe {
			top = e
		}
	}
	return &top, nil
}

// Statistics summarizes the whole index.
type Statistics struct {
	TotalRuns  int      `json:"total_runs"`
	Strategies []string `json:"strategies"`
	BestSharpe float64  `json:"best_sharpe"`
	AvgSharpe  float64  `json:"avg_sharpe"`
	Kinds      []string `json:"kinds"`
}

func (s *Store) Statistics() (*Statistics, error) {
	entries, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	stats := &Statistics{TotalRuns: len(entries)}
	if len(entries) == 0 {
		return stats, nil
	}

	strategies := map[string]bool{}
	kinds := map[string]bool{}
	var sum float64
	stats.BestSharpe = entries[0].BestSharpe
	for _, e := range entries {
		strategies[e.StrategyID] = true
		kinds[e.SearchKind] = true
		sum += e.BestSharpe
		if e.BestSharpe > stats.BestSharpe {
			stats.BestSharpe = e.BestSharpe
		}
	}
	stats.AvgSharpe = sum / float64(len(entries))
	for name := range strategies {
		stats.Strategies = append(stats.Strategies, name)
	}
	for name := range kinds {
		stats.Kinds = append(stats.Kinds, name)
	}
	sort.Strings(stats.Strategies)
	sort.Strings(stats.Kinds)
	return stats, nil
}
