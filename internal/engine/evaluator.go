package engine

import (
	"context"
	"fmt"
	"time"

	"quant-optimizer/internal/model"
	"quant-optimizer/internal/strategy"

	"github.com/shopspring/decimal"
)

// CandleSource abstracts where candles come from so tests can feed fixtures
// without a database.
type CandleSource interface {
	LoadCandles(ctx context.Context, symbol string, start, end time.Time, period string) ([]model.KLine, error)
}

// BacktestEvaluator is the reference implementation of the evaluator
// contract: it replays each symbol's candles through a freshly built
// strategy and aggregates the per-symbol reports into one MetricsRecord.
// Safe for concurrent use; every call builds its own strategy and
// backtester.
type BacktestEvaluator struct {
	source CandleSource
	period string
}

func NewBacktestEvaluator(source CandleSource, period string) *BacktestEvaluator {
	if period == "" {
		period = "1d"
	}
	return &BacktestEvaluator{source: source, period: period}
}

func (e *BacktestEvaluator) Evaluate(ctx context.Context, strategyID string, params model.Combination,
	symbols []string, start, end time.Time, capital decimal.Decimal) (*model.MetricsRecord, error) {

	// Capital is split equally across symbols.
	perSymbol := capital.Div(decimal.NewFromInt(int64(len(symbols))))

	reports := make([]*model.MetricsRecord, 0, len(symbols))
	for _, symbol := range symbols {
		candles, err := e.source.LoadCandles(ctx, symbol, start, end, e.period)
		if err != nil {
			return nil, fmt.Errorf("failed to load candles for %s: %w", symbol, err)
		}
		if len(candles) == 0 {
			return nil, fmt.Errorf("no market data for %s in %s..%s",
				symbol, start.Format(time.DateOnly), end.Format(time.DateOnly))
		}

		strat, err := strategy.New(strategyID, params)
		if err != nil {
			return nil, err
		}

		reports = append(reports, NewBacktester(strat, perSymbol).Run(candles))
	}

	return aggregate(reports), nil
}

// aggregate combines equal-weight per-symbol reports: returns and Sharpe
// average, drawdown takes the worst symbol, win rate weights by trade count.
func aggregate(reports []*model.MetricsRecord) *model.MetricsRecord {
	if len(reports) == 1 {
		return reports[0]
	}

	n := decimal.NewFromInt(int64(len(reports)))
	out := &model.MetricsRecord{Extra: map[string]float64{}}

	totalReturn := decimal.Zero
	var wins float64
	for _, r := range reports {
		totalReturn = totalReturn.Add(r.TotalReturn)
		out.Sharpe += r.Sharpe
		if r.MaxDrawdown > out.MaxDrawdown {
			out.MaxDrawdown = r.MaxDrawdown
		}
		out.Trades += r.Trades
		wins += r.WinRate * float64(r.Trades)
		for k, v := range r.Extra {
			out.Extra[k] += v
		}
	}

	out.TotalReturn = totalReturn.Div(n)
	out.Sharpe /= float64(len(reports))
	if out.Trades > 0 {
		out.WinRate = wins / float64(out.Trades)
	}
	return out
}
