package engine

import (
	"io"
	"math"
	"testing"

	"quantbt/internal/domain"
	"quantbt/internal/util"
)

func newSizer(t *testing.T, rules domain.InstrumentRules, exposureCap float64) *Sizer {
	t.Helper()
	return NewSizer(rules, exposureCap, util.NewLoggerTo(io.Discard, "error"))
}

func TestSizeRiskLimited(t *testing.T) {
	s := newSizer(t, domain.DefaultRules("AAPL"), 1.0)

	// 1% of 100k at risk, two dollars of risk per share.
	profile := RiskProfile{StopLoss: 98, RiskPerUnit: 2, MoneyRisk: 1000}
	qty := s.Size(profile, 100_000, 100)
	if math.Abs(qty-500) > 1e-9 {
		t.Errorf("Size = %v, want 500", qty)
	}
}

func TestSizeExposureLimited(t *testing.T) {
	s := newSizer(t, domain.DefaultRules("AAPL"), 0.1)

	// Risk alone would allow 5000 shares; the exposure cap allows 100.
	profile := RiskProfile{StopLoss: 99, RiskPerUnit: 1, MoneyRisk: 5000}
	qty := s.Size(profile, 100_000, 100)
	if math.Abs(qty-100) > 1e-9 {
		t.Errorf("Size = %v, want 100", qty)
	}
}

func TestSizeDegenerateRisk(t *testing.T) {
	s := newSizer(t, domain.DefaultRules("AAPL"), 1.0)

	profile := RiskProfile{StopLoss: 100, RiskPerUnit: 0, MoneyRisk: 1000}
	if qty := s.Size(profile, 100_000, 100); qty != 0 {
		t.Errorf("Size with zero risk per unit = %v, want 0", qty)
	}
}

func TestAdjustQuantityLotRules(t *testing.T) {
	rules := domain.InstrumentRules{Symbol: "600519.SS", QtyStep: 1, LotSize: 100, MinOrderQty: 100}
	s := newSizer(t, rules, 1.0)

	if qty := s.AdjustQuantity(257); qty != 200 {
		t.Errorf("AdjustQuantity(257) = %v, want 200", qty)
	}
	if qty := s.AdjustQuantity(99); qty != 0 {
		t.Errorf("AdjustQuantity(99) = %v, want 0 (below minimum)", qty)
	}
}

func TestAdjustQuantityFractionalStep(t *testing.T) {
	rules := domain.InstrumentRules{Symbol: "BTCUSD", QtyStep: 0.001, LotSize: 1, MinOrderQty: 0.001}
	s := newSizer(t, rules, 1.0)

	if qty := s.AdjustQuantity(0.123456); math.Abs(qty-0.123) > 1e-12 {
		t.Errorf("AdjustQuantity(0.123456) = %v, want 0.123", qty)
	}
	if qty := s.AdjustQuantity(0.0004); qty != 0 {
		t.Errorf("AdjustQuantity(0.0004) = %v, want 0", qty)
	}
}
