package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// KLine (Candle) 代表一根K线
type KLine struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	Exchange  string          `json:"exchange" db:"exchange"`
	Period    string          `json:"period" db:"period"` // "1m", "5m", "1d"
	Open      decimal.Decimal `json:"o" db:"open"`
	High      decimal.Decimal `json:"h" db:"high"`
	Low       decimal.Decimal `json:"l" db:"low"`
	Close     decimal.Decimal `json:"c" db:"close"`
	Volume    decimal.Decimal `json:"v" db:"volume"`
	Timestamp time.Time       `json:"t" db:"time"`
}

// SimulatedTrade 回测中的单笔交易记录
type SimulatedTrade struct {
	Time   time.Time       `json:"time"`
	Symbol string          `json:"symbol"`
	Side   string          `json:"side"` // "buy", "sell"
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	Fee    decimal.Decimal `json:"fee"`
	PnL    decimal.Decimal `json:"pnl"`
}
