package builtins

import (
	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// Indicator names written by MeanReversion.
const (
	IndicatorMRMean = "mr_mean"
	IndicatorMRStd  = "mr_std"
)

var _ strategy.Strategy = (*MeanReversion)(nil)

// MeanReversion fades stretched prices: it goes long when the close sits
// more than entryZ sample deviations below its rolling mean, and short on
// the mirror condition.
type MeanReversion struct {
	params    map[string]float64
	period    int
	entryZ    float64
	atrPeriod int
}

// NewMeanReversion creates the strategy from a resolved parameter map.
func NewMeanReversion(params map[string]float64) (strategy.Strategy, error) {
	return &MeanReversion{
		params:    params,
		period:    int(params["period"]),
		entryZ:    params["entry_z"],
		atrPeriod: int(params["atr_period"]),
	}, nil
}

// MeanReversionDefs is the tunable parameter space for MeanReversion.
func MeanReversionDefs() []strategy.ParamDef {
	return []strategy.ParamDef{
		{Name: "period", Type: strategy.ParamInt, Default: 20, Low: 10, High: 100, Step: 5, Optimizable: true},
		{Name: "entry_z", Type: strategy.ParamFloat, Default: 2.0, Low: 1.0, High: 3.5, Step: 0.25, Optimizable: true},
		{Name: "atr_period", Type: strategy.ParamInt, Default: 14, Optimizable: false},
	}
}

func (s *MeanReversion) Name() string               { return "mean_reversion" }
func (s *MeanReversion) Params() map[string]float64 { return s.params }
func (s *MeanReversion) MinHistory() int            { return s.period + 1 }

func (s *MeanReversion) Precompute(bars []domain.Bar) []domain.Bar {
	enriched := strategy.CloneBars(bars)
	strategy.EnrichSMA(enriched, s.period, IndicatorMRMean)
	strategy.EnrichRollingStdDev(enriched, s.period, IndicatorMRStd)
	strategy.EnrichATR(enriched, s.atrPeriod, IndicatorATR)
	return enriched
}

func (s *MeanReversion) OnBar(window []domain.Bar) *domain.SignalEvent {
	cur := window[len(window)-1]

	mean, ok1 := cur.Indicator(IndicatorMRMean)
	sd, ok2 := cur.Indicator(IndicatorMRStd)
	if !ok1 || !ok2 || sd <= 0 {
		return nil
	}

	z := (cur.Close - mean) / sd
	switch {
	case z <= -s.entryZ:
		return &domain.SignalEvent{
			Symbol:    cur.Symbol,
			Timestamp: cur.Timestamp,
			Direction: domain.DirectionLong,
			Reason:    domain.TriggerSignal,
		}
	case z >= s.entryZ:
		return &domain.SignalEvent{
			Symbol:    cur.Symbol,
			Timestamp: cur.Timestamp,
			Direction: domain.DirectionShort,
			Reason:    domain.TriggerSignal,
		}
	}
	return nil
}

// Register wires the built-in strategies into the given registry.
func Register(r *strategy.Registry) {
	r.Register("sma_cross", strategy.Entry{Factory: NewSMACross, Defs: SMACrossDefs()})
	r.Register("mean_reversion", strategy.Entry{Factory: NewMeanReversion, Defs: MeanReversionDefs()})
}
