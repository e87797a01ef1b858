package strategy

import (
	"quant-optimizer/internal/model"

	"github.com/shopspring/decimal"
)

// MAStrategy holds while the short MA tracks the long MA and flips to the
// side of the faster average otherwise.
type MAStrategy struct {
	shortPeriod int
	longPeriod  int
	prices      []decimal.Decimal
}

func NewMAStrategy(short, long int) *MAStrategy {
	return &MAStrategy{
		shortPeriod: short,
		longPeriod:  long,
		prices:      make([]decimal.Decimal, 0),
	}
}

func (s *MAStrategy) Name() string {
	return "Moving Average"
}

func (s *MAStrategy) OnCandle(candle model.KLine) Action {
	s.prices = append(s.prices, candle.Close)
	if len(s.prices) > s.longPeriod+1 {
		s.prices = s.prices[1:]
	}

	if len(s.prices) < s.longPeriod {
		return ActionHold
	}

	shortMA := s.movingAverage(s.shortPeriod)
	longMA := s.movingAverage(s.longPeriod)

	if shortMA.GreaterThan(longMA) {
		return ActionBuy
	} else if shortMA.LessThan(longMA) {
		return ActionSell
	}

	return ActionHold
}

func (s *MAStrategy) movingAverage(period int) decimal.Decimal {
	sum := decimal.Zero
	data := s.prices[len(s.prices)-period:]
	for _, p := range data {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}
