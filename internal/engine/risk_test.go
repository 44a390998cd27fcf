package engine

import (
	"errors"
	"math"
	"testing"

	"quantbt/internal/domain"
)

func TestFixedProfilerLong(t *testing.T) {
	p := NewFixedProfiler(2.0, 2.0)

	profile, err := p.Profile(100, domain.DirectionLong, 100_000, nil)
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}

	if math.Abs(profile.StopLoss-98) > 1e-9 {
		t.Errorf("StopLoss = %v, want 98", profile.StopLoss)
	}
	if math.Abs(profile.TakeProfit-104) > 1e-9 {
		t.Errorf("TakeProfit = %v, want 104", profile.TakeProfit)
	}
	if math.Abs(profile.RiskPerUnit-2) > 1e-9 {
		t.Errorf("RiskPerUnit = %v, want 2", profile.RiskPerUnit)
	}
	if math.Abs(profile.MoneyRisk-2000) > 1e-9 {
		t.Errorf("MoneyRisk = %v, want 2000", profile.MoneyRisk)
	}
}

func TestFixedProfilerShortMirrors(t *testing.T) {
	p := NewFixedProfiler(2.0, 2.0)

	profile, err := p.Profile(100, domain.DirectionShort, 50_000, nil)
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}

	if math.Abs(profile.StopLoss-102) > 1e-9 {
		t.Errorf("StopLoss = %v, want 102", profile.StopLoss)
	}
	if math.Abs(profile.TakeProfit-96) > 1e-9 {
		t.Errorf("TakeProfit = %v, want 96", profile.TakeProfit)
	}
}

func TestFixedProfilerRejectsBadEntry(t *testing.T) {
	p := NewFixedProfiler(2.0, 2.0)

	_, err := p.Profile(0, domain.DirectionLong, 100_000, nil)
	if !errors.Is(err, domain.ErrInvalidRiskInput) {
		t.Errorf("expected ErrInvalidRiskInput for zero entry, got %v", err)
	}

	_, err = p.Profile(-5, domain.DirectionLong, 100_000, nil)
	if !errors.Is(err, domain.ErrInvalidRiskInput) {
		t.Errorf("expected ErrInvalidRiskInput for negative entry, got %v", err)
	}
}

func TestATRProfilerUsesIndicator(t *testing.T) {
	p := NewATRProfiler(1.0, 2.0, 4.0, "atr", nil)
	bar := &domain.Bar{Indicators: map[string]float64{"atr": 1.5}}

	profile, err := p.Profile(100, domain.DirectionLong, 100_000, bar)
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}

	if math.Abs(profile.StopLoss-97) > 1e-9 {
		t.Errorf("StopLoss = %v, want 97 (entry - 2*ATR)", profile.StopLoss)
	}
	if math.Abs(profile.TakeProfit-106) > 1e-9 {
		t.Errorf("TakeProfit = %v, want 106 (entry + 4*ATR)", profile.TakeProfit)
	}
	// Money risk is independent of the stop distance policy.
	if math.Abs(profile.MoneyRisk-1000) > 1e-9 {
		t.Errorf("MoneyRisk = %v, want 1000", profile.MoneyRisk)
	}
}

func TestATRProfilerMissingIndicator(t *testing.T) {
	// Without a fallback the profiler must reject the signal.
	strict := NewATRProfiler(1.0, 2.0, 4.0, "atr", nil)
	_, err := strict.Profile(100, domain.DirectionLong, 100_000, &domain.Bar{})
	if !errors.Is(err, domain.ErrInvalidRiskInput) {
		t.Errorf("expected ErrInvalidRiskInput without indicator, got %v", err)
	}

	// With a fallback it degrades to fixed-percent distances.
	soft := NewATRProfiler(1.0, 2.0, 4.0, "atr", NewFixedProfiler(1.0, 2.0))
	profile, err := soft.Profile(100, domain.DirectionLong, 100_000, &domain.Bar{})
	if err != nil {
		t.Fatalf("fallback profile returned error: %v", err)
	}
	if math.Abs(profile.StopLoss-99) > 1e-9 {
		t.Errorf("fallback StopLoss = %v, want 99", profile.StopLoss)
	}
}

func TestBuildProfiler(t *testing.T) {
	p, err := BuildProfiler("fixed", map[string]float64{ParamRiskPct: 1.5}, "atr")
	if err != nil {
		t.Fatalf("BuildProfiler(fixed) error: %v", err)
	}
	if p.Name() != "fixed" {
		t.Errorf("Name() = %q, want fixed", p.Name())
	}

	p, err = BuildProfiler("atr", nil, "atr")
	if err != nil {
		t.Fatalf("BuildProfiler(atr) error: %v", err)
	}
	if p.Name() != "atr" {
		t.Errorf("Name() = %q, want atr", p.Name())
	}

	if _, err := BuildProfiler("kelly", nil, "atr"); err == nil {
		t.Error("BuildProfiler should reject unknown kinds")
	}
}
