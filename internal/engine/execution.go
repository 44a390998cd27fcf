package engine

import (
	"fmt"
	"math"

	"quantbt/internal/domain"
)

// maxSlippagePct caps the square-root impact model so anomalous near-zero
// volume bars cannot produce absurd fills.
const maxSlippagePct = 0.20

// Simulator turns order intents into fills, applying a square-root market
// impact slippage curve and proportional commission.
type Simulator struct {
	commissionRate  float64
	impactCoeff     float64
	slippageEnabled bool
}

// NewSimulator creates an execution simulator. A zero impact coefficient
// disables slippage.
func NewSimulator(commissionRate, impactCoeff float64) *Simulator {
	return &Simulator{
		commissionRate:  commissionRate,
		impactCoeff:     impactCoeff,
		slippageEnabled: impactCoeff > 0,
	}
}

// Execute fills the order against the reference bar. Orders without an
// explicit price fill at the bar's open; a nil bar is a caller contract
// violation reported as ErrNoReferenceBar.
func (s *Simulator) Execute(order domain.OrderEvent, refBar *domain.Bar) (domain.FillEvent, error) {
	if refBar == nil {
		return domain.FillEvent{}, fmt.Errorf("%w: order %s for %s", domain.ErrNoReferenceBar, order.ID, order.Symbol)
	}

	basePrice := refBar.Open
	if order.PriceHint != nil {
		basePrice = *order.PriceHint
	}

	side := tradeSide(order)
	execPrice := s.applySlippage(basePrice, order.Qty, side, refBar.Volume)
	commission := execPrice * order.Qty * s.commissionRate

	return domain.FillEvent{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Timestamp:  order.Timestamp,
		Direction:  order.Direction,
		Purpose:    order.Purpose,
		Qty:        order.Qty,
		Price:      execPrice,
		Commission: commission,
		Reason:     order.Reason,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
	}, nil
}

// tradeSide maps an order to the buy/sell side actually hitting the book:
// opening a long or closing a short buys, the other two sell.
func tradeSide(order domain.OrderEvent) domain.Direction {
	if order.Purpose == domain.PurposeOpen {
		return order.Direction
	}
	return order.Direction.Opposite()
}

// applySlippage worsens the price by impactCoeff x sqrt(order share of bar
// volume), clamped at maxSlippagePct. Buys fill higher, sells lower.
func (s *Simulator) applySlippage(idealPrice, qty float64, side domain.Direction, barVolume float64) float64 {
	if !s.slippageEnabled || barVolume <= 0 {
		return idealPrice
	}

	volumeRatio := math.Min(qty/barVolume, 1.0)
	slipPct := math.Min(s.impactCoeff*math.Sqrt(volumeRatio), maxSlippagePct)

	if side == domain.DirectionLong {
		return idealPrice * (1 + slipPct)
	}
	return idealPrice * (1 - slipPct)
}
