package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quant-optimizer/internal/model"

	"github.com/jackc/pgx/v4/pgxpool"
)

// DataLoader fetches candles from the market database with an in-memory
// per-window cache. A grid search evaluates the same window hundreds of
// times; loading it once makes the database a non-factor.
type DataLoader struct {
	pool *pgxpool.Pool

	mu    sync.RWMutex
	cache map[string][]model.KLine
}

func NewDataLoader(pool *pgxpool.Pool) *DataLoader {
	return &DataLoader{
		pool:  pool,
		cache: make(map[string][]model.KLine),
	}
}

func cacheKey(symbol string, start, end time.Time, period string) string {
	return fmt.Sprintf("%s|%d|%d|%s", symbol, start.Unix(), end.Unix(), period)
}

func (l *DataLoader) LoadCandles(ctx context.Context, symbol string, start, end time.Time, period string) ([]model.KLine, error) {
	key := cacheKey(symbol, start, end, period)

	l.mu.RLock()
	cached, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rows, err := l.pool.Query(ctx, `
		SELECT time, symbol, exchange, period, open, high, low, close, volume
		FROM market_klines
		WHERE symbol = $1 AND period = $2 AND time >= $3 AND time <= $4
		ORDER BY time ASC`,
		symbol, period, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []model.KLine
	for rows.Next() {
		var k model.KLine
		if err := rows.Scan(&k.Timestamp, &k.Symbol, &k.Exchange, &k.Period, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, err
		}
		candles = append(candles, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[key] = candles
	l.mu.Unlock()

	return candles, nil
}
