package engine

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"quantbt/internal/domain"
)

// Sizer converts a risk profile into a tradable quantity through the sizing
// funnel: risk budget, exposure cap, exchange lot rules, minimum order size.
type Sizer struct {
	rules       domain.InstrumentRules
	exposureCap float64 // fraction of capital one position may occupy
	precision   int     // decimals implied by the quantity step
	logger      *slog.Logger
}

// NewSizer creates a sizer for one instrument.
func NewSizer(rules domain.InstrumentRules, exposureCap float64, logger *slog.Logger) *Sizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sizer{
		rules:       rules,
		exposureCap: exposureCap,
		precision:   stepPrecision(rules.QtyStep),
		logger:      logger,
	}
}

// stepPrecision derives the rounding precision from a quantity step, e.g.
// 0.001 implies 3 decimals.
func stepPrecision(step float64) int {
	s := strconv.FormatFloat(step, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// Size runs the funnel and returns the final tradable quantity, or zero when
// the result falls below the instrument minimum. Pure aside from logging the
// limiting factor.
func (s *Sizer) Size(profile RiskProfile, capital, entryPrice float64) float64 {
	if entryPrice <= 0 {
		return 0
	}

	var qtyFromRisk float64
	if profile.RiskPerUnit > 1e-9 {
		qtyFromRisk = profile.MoneyRisk / profile.RiskPerUnit
	}
	qtyFromExposure := capital * s.exposureCap / entryPrice

	ideal := math.Min(qtyFromRisk, qtyFromExposure)
	final := s.AdjustQuantity(ideal)

	if final > 0 {
		limiting := "risk"
		if qtyFromExposure < qtyFromRisk {
			limiting = "exposure"
		}
		s.logger.Debug("position sized",
			"symbol", s.rules.Symbol,
			"limiting_factor", limiting,
			"qty_from_risk", qtyFromRisk,
			"qty_from_exposure", qtyFromExposure,
			"final_qty", final)
	}
	return final
}

// AdjustQuantity clips an ideal quantity to the instrument rules: floor to
// the quantity step, then to whole lots, then drop float artifacts, then
// enforce the minimum order size.
func (s *Sizer) AdjustQuantity(qty float64) float64 {
	adjusted := qty
	if s.rules.QtyStep > 0 {
		adjusted = math.Floor(qty/s.rules.QtyStep) * s.rules.QtyStep
	}
	if s.rules.LotSize > 1 {
		adjusted = math.Floor(adjusted/s.rules.LotSize) * s.rules.LotSize
	}
	if s.precision > 0 {
		scale := math.Pow10(s.precision)
		adjusted = math.Round(adjusted*scale) / scale
	} else {
		adjusted = math.Trunc(adjusted)
	}
	if adjusted < s.rules.MinOrderQty {
		return 0
	}
	return adjusted
}
