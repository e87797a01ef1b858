package search

import (
	"math"

	"quant-optimizer/internal/model"
)

// Better reports whether a ranks strictly ahead of b. The order is total:
// higher Sharpe first, ties broken by higher return, then lower absolute
// drawdown, then first-enumerated. Both results must be successful.
func Better(a, b model.TrialResult) bool {
	am, bm := a.Outcome.Metrics, b.Outcome.Metrics

	if am.Sharpe != bm.Sharpe {
		return am.Sharpe > bm.Sharpe
	}
	if !am.TotalReturn.Equal(bm.TotalReturn) {
		return am.TotalReturn.GreaterThan(bm.TotalReturn)
	}
	if math.Abs(am.MaxDrawdown) != math.Abs(bm.MaxDrawdown) {
		return math.Abs(am.MaxDrawdown) < math.Abs(bm.MaxDrawdown)
	}
	return a.Trial.Seq < b.Trial.Seq
}

// best returns the top-ranked successful result, or nil if every trial
// failed.
func best(results []model.TrialResult) *model.TrialResult {
	var top *model.TrialResult
	for i := range results {
		if !results[i].Outcome.OK() {
			continue
		}
		if top == nil || Better(results[i], *top) {
			top = &results[i]
		}
	}
	return top
}

// summarize computes cheap aggregate statistics over all trial results.
func summarize(results []model.TrialResult) *model.RunSummary {
	s := &model.RunSummary{
		MinSharpe: math.Inf(1),
		MaxSharpe: math.Inf(-1),
	}

	var sumSharpe, sumReturn float64
	sharpes := make([]float64, 0, len(results))
	for _, r := range results {
		if !r.Outcome.OK() {
			s.Failed++
			continue
		}
		s.Succeeded++
		m := r.Outcome.Metrics
		sharpes = append(sharpes, m.Sharpe)
		sumSharpe += m.Sharpe
		ret, _ := m.TotalReturn.Float64()
		sumReturn += ret
		if m.Sharpe < s.MinSharpe {
			s.MinSharpe = m.Sharpe
		}
		if m.Sharpe > s.MaxSharpe {
			s.MaxSharpe = m.Sharpe
		}
	}

	if s.Succeeded == 0 {
		s.MinSharpe, s.MaxSharpe = 0, 0
		return s
	}

	n := float64(s.Succeeded)
	s.MeanSharpe = sumSharpe / n
	s.MeanReturn = sumReturn / n

	var sumSq float64
	for _, v := range sharpes {
		d := v - s.MeanSharpe
		sumSq += d * d
	}
	s.StdSharpe = math.Sqrt(sumSq / n)
	return s
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
