package engine

import (
	"math"

	"quant-optimizer/internal/model"
	"quant-optimizer/internal/strategy"

	"github.com/shopspring/decimal"
)

// Backtester replays candles through a strategy and produces the metrics
// vocabulary the optimizer ranks on. One instance per trial: it is stateful
// and not safe for reuse.
type Backtester struct {
	strategy    strategy.Strategy
	balance     decimal.Decimal
	position    decimal.Decimal // current quantity held
	feeRate     decimal.Decimal
	slippage    decimal.Decimal
	trades      []model.SimulatedTrade
	equityCurve []decimal.Decimal
	returns     []float64
}

func NewBacktester(strat strategy.Strategy, initialBalance decimal.Decimal) *Backtester {
	return &Backtester{
		strategy:    strat,
		balance:     initialBalance,
		position:    decimal.Zero,
		feeRate:     decimal.NewFromFloat(0.001),  // 0.1% fee
		slippage:    decimal.NewFromFloat(0.0005), // 0.05% slippage
		trades:      make([]model.SimulatedTrade, 0),
		equityCurve: make([]decimal.Decimal, 0),
		returns:     make([]float64, 0),
	}
}

func (b *Backtester) Run(candles []model.KLine) *model.MetricsRecord {
	initialBalance := b.balance
	prevEquity := initialBalance

	for _, candle := range candles {
		action := b.strategy.OnCandle(candle)

		if action == strategy.ActionBuy && b.balance.GreaterThan(decimal.Zero) {
			b.buy(candle)
		} else if action == strategy.ActionSell && b.position.GreaterThan(decimal.Zero) {
			b.sell(candle)
		}

		currentEquity := b.balance.Add(b.position.Mul(candle.Close))
		b.equityCurve = append(b.equityCurve, currentEquity)

		ret, _ := currentEquity.Sub(prevEquity).Div(prevEquity).Float64()
		b.returns = append(b.returns, ret)
		prevEquity = currentEquity
	}

	// Final liquidation at last price
	if b.position.GreaterThan(decimal.Zero) && len(candles) > 0 {
		b.sell(candles[len(candles)-1])
	}

	totalReturn := b.balance.Sub(initialBalance).Div(initialBalance)
	maxDD, _ := b.maxDrawdown().Float64()
	winRate := b.winRate()
	finalBalance, _ := b.balance.Float64()

	return &model.MetricsRecord{
		Sharpe:      b.sharpeRatio(),
		TotalReturn: totalReturn,
		MaxDrawdown: maxDD,
		WinRate:     winRate,
		Trades:      len(b.trades),
		Extra: map[string]float64{
			"final_balance": finalBalance,
		},
	}
}

func (b *Backtester) buy(candle model.KLine) {
	price := candle.Close.Mul(decimal.NewFromFloat(1).Add(b.slippage))
	qty := b.balance.Div(price.Mul(decimal.NewFromFloat(1).Add(b.feeRate)))

	if qty.LessThanOrEqual(decimal.Zero) {
		return
	}

	fee := qty.Mul(price).Mul(b.feeRate)
	b.balance = b.balance.Sub(qty.Mul(price)).Sub(fee)
	b.position = b.position.Add(qty)

	b.trades = append(b.trades, model.SimulatedTrade{
		Time:   candle.Timestamp,
		Symbol: candle.Symbol,
		Side:   "buy",
		Price:  price,
		Size:   qty,
		Fee:    fee,
	})
}

func (b *Backtester) sell(candle model.KLine) {
	price := candle.Close.Mul(decimal.NewFromFloat(1).Sub(b.slippage))
	saleValue := b.position.Mul(price)
	fee := saleValue.Mul(b.feeRate)

	// PnL relative to the cost basis of the open position.
	costBasis := b.costBasis()
	pnl := saleValue.Sub(fee).Sub(costBasis)

	b.balance = b.balance.Add(saleValue).Sub(fee)

	b.trades = append(b.trades, model.SimulatedTrade{
		Time:   candle.Timestamp,
		Symbol: candle.Symbol,
		Side:   "sell",
		Price:  price,
		Size:   b.position,
		Fee:    fee,
		PnL:    pnl,
	})

	b.position = decimal.Zero
}

// costBasis sums the purchase value (incl. fees) since the last flat point.
func (b *Backtester) costBasis() decimal.Decimal {
	cost := decimal.Zero
	for i := len(b.trades) - 1; i >= 0; i-- {
		if b.trades[i].Side == "sell" {
			break
		}
		t := b.trades[i]
		cost = cost.Add(t.Price.Mul(t.Size)).Add(t.Fee)
	}
	return cost
}

func (b *Backtester) maxDrawdown() decimal.Decimal {
	if len(b.equityCurve) == 0 {
		return decimal.Zero
	}
	maxEquity := b.equityCurve[0]
	maxDD := decimal.Zero
	for _, equity := range b.equityCurve {
		if equity.GreaterThan(maxEquity) {
			maxEquity = equity
		}
		dd := maxEquity.Sub(equity).Div(maxEquity)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD
}

func (b *Backtester) winRate() float64 {
	wins, sells := 0, 0
	for _, t := range b.trades {
		if t.Side != "sell" {
			continue
		}
		sells++
		if t.PnL.GreaterThan(decimal.Zero) {
			wins++
		}
	}
	if sells == 0 {
		return 0
	}
	return float64(wins) / float64(sells)
}

func (b *Backtester) sharpeRatio() float64 {
	if len(b.returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range b.returns {
		sum += r
	}
	avgReturn := sum / float64(len(b.returns))

	var sumSqDiff float64
	for _, r := range b.returns {
		diff := r - avgReturn
		sumSqDiff += diff * diff
	}
	stdDev := math.Sqrt(sumSqDiff / float64(len(b.returns)))

	if stdDev == 0 {
		return 0
	}

	return avgReturn / stdDev
}
