package strategy

import (
	"quant-optimizer/internal/model"

	"github.com/shopspring/decimal"
)

// MACrossStrategy 双均线交叉策略
type MACrossStrategy struct {
	candles     []model.KLine
	shortPeriod int
	longPeriod  int
}

func NewMACrossStrategy(shortPeriod, longPeriod int) *MACrossStrategy {
	return &MACrossStrategy{
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		candles:     make([]model.KLine, 0),
	}
}

func (s *MACrossStrategy) Name() string {
	return "MA_Cross"
}

func (s *MACrossStrategy) OnCandle(candle model.KLine) Action {
	s.candles = append(s.candles, candle)
	if len(s.candles) > s.longPeriod+1 {
		s.candles = s.candles[1:]
	}

	if len(s.candles) < s.longPeriod+1 {
		return ActionHold
	}

	shortMA := s.movingAverage(s.shortPeriod, 0)
	longMA := s.movingAverage(s.longPeriod, 0)
	prevShortMA := s.movingAverage(s.shortPeriod, 1)
	prevLongMA := s.movingAverage(s.longPeriod, 1)

	// Golden Cross
	if prevShortMA.LessThanOrEqual(prevLongMA) && shortMA.GreaterThan(longMA) {
		return ActionBuy
	}
	// Death Cross
	if prevShortMA.GreaterThanOrEqual(prevLongMA) && shortMA.LessThan(longMA) {
		return ActionSell
	}

	return ActionHold
}

func (s *MACrossStrategy) movingAverage(period int, offset int) decimal.Decimal {
	sum := decimal.Zero
	end := len(s.candles) - offset
	start := end - period
	for i := start; i < end; i++ {
		sum = sum.Add(s.candles[i].Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}
