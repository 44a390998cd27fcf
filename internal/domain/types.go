// Package domain defines the core data model shared across the engine,
// optimizer, stores, and live monitor: bars, positions, trades, instrument
// rules, and the event types that flow through a simulation run.
package domain

import "time"

// Direction is the side of a position or signal.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposite returns the reverse side.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// TriggerReason records why an order or trade exit was produced.
type TriggerReason string

const (
	TriggerSignal         TriggerReason = "signal"
	TriggerStopLoss       TriggerReason = "stop_loss"
	TriggerTakeProfit     TriggerReason = "take_profit"
	TriggerOppositeSignal TriggerReason = "opposite_signal"
	TriggerEndOfData      TriggerReason = "end_of_data"
)

// Bar is a single OHLCV bar for one instrument. Indicators holds optional
// strategy precomputed values (moving averages, ATR) keyed by name; a nil
// map means no enrichment has run.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Indicators map[string]float64
}

// Indicator returns the named indicator value and whether it is present.
func (b *Bar) Indicator(name string) (float64, bool) {
	if b.Indicators == nil {
		return 0, false
	}
	v, ok := b.Indicators[name]
	return v, ok
}

// InstrumentRules describes exchange constraints applied when sizing orders.
// QtyStep is the smallest quantity increment, LotSize the number of units per
// tradable lot, MinOrderQty the smallest accepted order.
type InstrumentRules struct {
	Symbol      string  `yaml:"symbol"`
	QtyStep     float64 `yaml:"qty_step"`
	LotSize     float64 `yaml:"lot_size"`
	MinOrderQty float64 `yaml:"min_order_qty"`
}

// DefaultRules returns rules for a whole-share, single-unit-lot instrument.
func DefaultRules(symbol string) InstrumentRules {
	return InstrumentRules{Symbol: symbol, QtyStep: 1, LotSize: 1, MinOrderQty: 1}
}

// Position is the open exposure in a single instrument. Pending marks a
// position with an unfilled order in flight; the risk monitor and strategy
// skip the instrument until the next fill clears the flag.
type Position struct {
	Symbol          string
	Direction       Direction
	Qty             float64
	EntryPrice      float64
	EntryTime       time.Time
	StopLoss        float64
	TakeProfit      float64
	EntryCommission float64
	Pending         bool
}

// Open reports whether the position holds any quantity.
func (p *Position) Open() bool {
	return p != nil && p.Qty > 0
}

// ClosedTrade is the immutable record of a completed round trip.
type ClosedTrade struct {
	ID         string
	Symbol     string
	Direction  Direction
	Qty        float64
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	GrossPnL   float64
	NetPnL     float64
	Commission float64
	ExitReason TriggerReason
}

// RunStatus is the lifecycle state of a simulation run.
type RunStatus string

const (
	StatusIdle     RunStatus = "idle"
	StatusRunning  RunStatus = "running"
	StatusFinished RunStatus = "finished"
	StatusFailed   RunStatus = "failed"
)

// Result is the terminal outcome of a run. Message carries the failure
// detail when Status is StatusFailed.
type Result struct {
	Status  RunStatus
	Message string
}
