package strategy

import (
	"fmt"

	"quant-optimizer/internal/model"
)

// New builds a fresh strategy instance from a parameter combination.
// Instances are stateful and must not be shared between trials.
func New(strategyType string, params model.Combination) (Strategy, error) {
	switch strategyType {
	case "ma":
		short, long, err := maPeriods(params)
		if err != nil {
			return nil, fmt.Errorf("invalid params for ma: %w", err)
		}
		return NewMAStrategy(short, long), nil
	case "ma_cross":
		short, long, err := maPeriods(params)
		if err != nil {
			return nil, fmt.Errorf("invalid params for ma_cross: %w", err)
		}
		return NewMACrossStrategy(short, long), nil
	default:
		return nil, fmt.Errorf("unknown strategy type: %s", strategyType)
	}
}

func maPeriods(params model.Combination) (int, int, error) {
	short, ok := params["short_period"]
	if !ok {
		return 0, 0, fmt.Errorf("missing short_period")
	}
	long, ok := params["long_period"]
	if !ok {
		return 0, 0, fmt.Errorf("missing long_period")
	}
	if short < 1 || long < 1 {
		return 0, 0, fmt.Errorf("periods must be >= 1 (short=%g, long=%g)", short, long)
	}
	if int(short) >= int(long) {
		return 0, 0, fmt.Errorf("short_period %d must be below long_period %d", int(short), int(long))
	}
	return int(short), int(long), nil
}
