// Package engine implements the event-driven backtest core: risk profiling,
// position sizing, execution simulation, portfolio accounting, and the
// bar-by-bar event loop that ties them together.
package engine

import (
	"fmt"
	"math"

	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// RiskProfile is the transient output of a Profiler for one candidate entry.
type RiskProfile struct {
	StopLoss    float64
	TakeProfit  float64
	RiskPerUnit float64 // |entry - stop|
	MoneyRisk   float64 // capital fraction at risk, in account currency
}

// Profiler computes stop, target, and money-at-risk for a candidate entry.
// The bar argument carries indicator context for volatility-aware profilers
// and may be nil for profilers that do not need it.
type Profiler interface {
	Name() string
	Profile(entryPrice float64, direction domain.Direction, capital float64, bar *domain.Bar) (RiskProfile, error)
}

// Compile-time interface checks.
var _ Profiler = (*FixedProfiler)(nil)
var _ Profiler = (*ATRProfiler)(nil)

// FixedProfiler places the stop at a fixed percent of the entry price and
// the target at tpRatio times the stop distance.
type FixedProfiler struct {
	riskPct float64 // percent, e.g. 2 for 2%
	tpRatio float64
}

// NewFixedProfiler creates a fixed-percent profiler.
func NewFixedProfiler(riskPct, tpRatio float64) *FixedProfiler {
	return &FixedProfiler{riskPct: riskPct, tpRatio: tpRatio}
}

func (p *FixedProfiler) Name() string { return "fixed" }

// Profile computes stop and target as percentages of the entry price. The
// money risk is always capital x riskPct regardless of stop placement.
func (p *FixedProfiler) Profile(entryPrice float64, direction domain.Direction, capital float64, _ *domain.Bar) (RiskProfile, error) {
	if entryPrice <= 0 {
		return RiskProfile{}, fmt.Errorf("%w: entry price %v", domain.ErrInvalidRiskInput, entryPrice)
	}
	if p.riskPct <= 0 {
		return RiskProfile{}, fmt.Errorf("%w: risk percent %v", domain.ErrInvalidRiskInput, p.riskPct)
	}

	frac := p.riskPct / 100
	var stop, target float64
	if direction == domain.DirectionLong {
		stop = entryPrice * (1 - frac)
		target = entryPrice * (1 + frac*p.tpRatio)
	} else {
		stop = entryPrice * (1 + frac)
		target = entryPrice * (1 - frac*p.tpRatio)
	}
	if target <= 0 {
		target = 0.0001
	}

	return RiskProfile{
		StopLoss:    stop,
		TakeProfit:  target,
		RiskPerUnit: math.Abs(entryPrice - stop),
		MoneyRisk:   capital * frac,
	}, nil
}

// ATRProfiler scales stop and target distances with the bar's ATR indicator.
// When the indicator is absent or non-positive it degrades to the fallback
// profiler, or fails with ErrInvalidRiskInput when no fallback is set.
type ATRProfiler struct {
	riskPct      float64
	slMultiplier float64
	tpMultiplier float64
	atrKey       string
	fallback     *FixedProfiler
}

// NewATRProfiler creates a volatility-adaptive profiler reading the named
// indicator from the reference bar. fallback may be nil.
func NewATRProfiler(riskPct, slMultiplier, tpMultiplier float64, atrKey string, fallback *FixedProfiler) *ATRProfiler {
	return &ATRProfiler{
		riskPct:      riskPct,
		slMultiplier: slMultiplier,
		tpMultiplier: tpMultiplier,
		atrKey:       atrKey,
		fallback:     fallback,
	}
}

func (p *ATRProfiler) Name() string { return "atr" }

func (p *ATRProfiler) Profile(entryPrice float64, direction domain.Direction, capital float64, bar *domain.Bar) (RiskProfile, error) {
	if entryPrice <= 0 {
		return RiskProfile{}, fmt.Errorf("%w: entry price %v", domain.ErrInvalidRiskInput, entryPrice)
	}

	var atr float64
	if bar != nil {
		atr, _ = bar.Indicator(p.atrKey)
	}
	if atr <= 1e-9 || math.IsNaN(atr) || math.IsInf(atr, 0) {
		if p.fallback != nil {
			return p.fallback.Profile(entryPrice, direction, capital, bar)
		}
		return RiskProfile{}, fmt.Errorf("%w: indicator %q missing or non-positive", domain.ErrInvalidRiskInput, p.atrKey)
	}

	slDist := atr * p.slMultiplier
	tpDist := atr * p.tpMultiplier

	var stop, target float64
	if direction == domain.DirectionLong {
		stop = entryPrice - slDist
		target = entryPrice + tpDist
	} else {
		stop = entryPrice + slDist
		target = entryPrice - tpDist
	}
	if target <= 0 {
		target = 0.0001
	}

	return RiskProfile{
		StopLoss:    stop,
		TakeProfit:  target,
		RiskPerUnit: math.Abs(entryPrice - stop),
		MoneyRisk:   capital * (p.riskPct / 100),
	}, nil
}

// Parameter names shared with the optimizer. Search-space entries carry the
// rm_ prefix so strategy and risk parameters can travel in one map.
const (
	ParamRiskPct         = "risk_pct"
	ParamTPRatio         = "tp_ratio"
	ParamATRMultiplierSL = "atr_multiplier_sl"
	ParamATRMultiplierTP = "atr_multiplier_tp"
)

// ProfilerDefs returns the tunable parameter space for the named profiler
// kind ("fixed" or "atr").
func ProfilerDefs(kind string) []strategy.ParamDef {
	base := []strategy.ParamDef{
		{Name: ParamRiskPct, Type: strategy.ParamFloat, Default: 2.0, Low: 0.5, High: 5.0, Step: 0.1, Optimizable: true},
	}
	switch kind {
	case "atr":
		return append(base,
			strategy.ParamDef{Name: ParamATRMultiplierSL, Type: strategy.ParamFloat, Default: 2.0, Low: 1.0, High: 4.0, Step: 0.25, Optimizable: true},
			strategy.ParamDef{Name: ParamATRMultiplierTP, Type: strategy.ParamFloat, Default: 4.0, Low: 2.0, High: 8.0, Step: 0.5, Optimizable: true},
		)
	default:
		return append(base,
			strategy.ParamDef{Name: ParamTPRatio, Type: strategy.ParamFloat, Default: 2.0, Low: 1.0, High: 4.0, Step: 0.25, Optimizable: true},
		)
	}
}

// BuildProfiler constructs a profiler of the given kind from a parameter
// map, filling unset parameters from the defaults in ProfilerDefs. The ATR
// profiler gets a fixed-percent fallback so sparse indicator coverage
// degrades instead of dropping every signal.
func BuildProfiler(kind string, params map[string]float64, atrKey string) (Profiler, error) {
	merged := strategy.MergeDefaults(ProfilerDefs(kind), params)
	switch kind {
	case "fixed":
		return NewFixedProfiler(merged[ParamRiskPct], merged[ParamTPRatio]), nil
	case "atr":
		fallback := NewFixedProfiler(merged[ParamRiskPct], 2.0)
		return NewATRProfiler(merged[ParamRiskPct], merged[ParamATRMultiplierSL], merged[ParamATRMultiplierTP], atrKey, fallback), nil
	default:
		return nil, fmt.Errorf("unknown risk profiler %q", kind)
	}
}
