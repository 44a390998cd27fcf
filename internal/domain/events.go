package domain

import "time"

// EventKind discriminates the event types routed through the engine queue.
type EventKind string

const (
	EventMarket EventKind = "market"
	EventSignal EventKind = "signal"
	EventOrder  EventKind = "order"
	EventFill   EventKind = "fill"
)

// Event is anything the engine queue can carry.
type Event interface {
	Kind() EventKind
}

// MarketEvent announces a new bar for an instrument.
type MarketEvent struct {
	Bar Bar
}

func (MarketEvent) Kind() EventKind { return EventMarket }

// SignalEvent is a strategy's intent to open or reverse exposure.
type SignalEvent struct {
	Symbol    string
	Timestamp time.Time
	Direction Direction
	Reason    TriggerReason
}

func (SignalEvent) Kind() EventKind { return EventSignal }

// OrderPurpose distinguishes entries from exits.
type OrderPurpose string

const (
	PurposeOpen  OrderPurpose = "open"
	PurposeClose OrderPurpose = "close"
)

// OrderEvent instructs the execution simulator to trade. PriceHint, when
// non-nil, pins the fill base price instead of the reference bar open; exits
// triggered at a stop or target use it to fill at the trigger level.
type OrderEvent struct {
	ID         string
	Symbol     string
	Timestamp  time.Time
	Direction  Direction
	Purpose    OrderPurpose
	Qty        float64
	PriceHint  *float64
	Reason     TriggerReason
	StopLoss   float64
	TakeProfit float64
}

func (OrderEvent) Kind() EventKind { return EventOrder }

// FillEvent reports a simulated execution back to the portfolio.
type FillEvent struct {
	OrderID    string
	Symbol     string
	Timestamp  time.Time
	Direction  Direction
	Purpose    OrderPurpose
	Qty        float64
	Price      float64
	Commission float64
	Reason     TriggerReason
	StopLoss   float64
	TakeProfit float64
}

func (FillEvent) Kind() EventKind { return EventFill }
