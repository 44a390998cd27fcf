// Package builtins provides the strategy implementations that ship with
// quantbt and a single registration point for wiring them into a Registry.
package builtins

import (
	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// Indicator names written by the built-in strategies during Precompute.
const (
	IndicatorSMAFast = "sma_fast"
	IndicatorSMASlow = "sma_slow"
	IndicatorATR     = "atr"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross generates a long signal when the fast SMA crosses above the slow
// SMA and a short signal on the opposite cross. ATR is enriched alongside
// the averages so volatility-aware risk profilers have their input.
type SMACross struct {
	params     map[string]float64
	fastPeriod int
	slowPeriod int
	atrPeriod  int
}

// NewSMACross creates the strategy from a resolved parameter map.
func NewSMACross(params map[string]float64) (strategy.Strategy, error) {
	return &SMACross{
		params:     params,
		fastPeriod: int(params["fast_period"]),
		slowPeriod: int(params["slow_period"]),
		atrPeriod:  int(params["atr_period"]),
	}, nil
}

// SMACrossDefs is the tunable parameter space for SMACross.
func SMACrossDefs() []strategy.ParamDef {
	return []strategy.ParamDef{
		{Name: "fast_period", Type: strategy.ParamInt, Default: 10, Low: 5, High: 50, Step: 1, Optimizable: true},
		{Name: "slow_period", Type: strategy.ParamInt, Default: 30, Low: 20, High: 200, Step: 5, Optimizable: true},
		{Name: "atr_period", Type: strategy.ParamInt, Default: 14, Optimizable: false},
	}
}

func (s *SMACross) Name() string               { return "sma_cross" }
func (s *SMACross) Params() map[string]float64 { return s.params }

// MinHistory requires one bar beyond the slow window so a cross can be
// detected against the previous bar.
func (s *SMACross) MinHistory() int { return s.slowPeriod + 1 }

func (s *SMACross) Precompute(bars []domain.Bar) []domain.Bar {
	enriched := strategy.CloneBars(bars)
	strategy.EnrichSMA(enriched, s.fastPeriod, IndicatorSMAFast)
	strategy.EnrichSMA(enriched, s.slowPeriod, IndicatorSMASlow)
	strategy.EnrichATR(enriched, s.atrPeriod, IndicatorATR)
	return enriched
}

func (s *SMACross) OnBar(window []domain.Bar) *domain.SignalEvent {
	if len(window) < 2 {
		return nil
	}
	cur := window[len(window)-1]
	prev := window[len(window)-2]

	curFast, ok1 := cur.Indicator(IndicatorSMAFast)
	curSlow, ok2 := cur.Indicator(IndicatorSMASlow)
	prevFast, ok3 := prev.Indicator(IndicatorSMAFast)
	prevSlow, ok4 := prev.Indicator(IndicatorSMASlow)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}

	switch {
	case prevFast <= prevSlow && curFast > curSlow:
		return &domain.SignalEvent{
			Symbol:    cur.Symbol,
			Timestamp: cur.Timestamp,
			Direction: domain.DirectionLong,
			Reason:    domain.TriggerSignal,
		}
	case prevFast >= prevSlow && curFast < curSlow:
		return &domain.SignalEvent{
			Symbol:    cur.Symbol,
			Timestamp: cur.Timestamp,
			Direction: domain.DirectionShort,
			Reason:    domain.TriggerSignal,
		}
	}
	return nil
}
