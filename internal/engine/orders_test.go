package engine

import (
	"io"
	"testing"
	"time"

	"quantbt/internal/domain"
	"quantbt/internal/util"
)

func newOrderManager(queue *eventQueue) *OrderManager {
	logger := util.NewLoggerTo(io.Discard, "error")
	profiler := NewFixedProfiler(1.0, 2.0)
	sizer := NewSizer(domain.DefaultRules("AAPL"), 1.0, logger)
	return NewOrderManager(queue, profiler, sizer, logger)
}

func longSignal() domain.SignalEvent {
	return domain.SignalEvent{
		Symbol:    "AAPL",
		Timestamp: time.Date(2025, 3, 3, 16, 0, 0, 0, time.UTC),
		Direction: domain.DirectionLong,
		Reason:    domain.TriggerSignal,
	}
}

func TestEntrySignalQueuesSizedOrder(t *testing.T) {
	queue := &eventQueue{}
	m := newOrderManager(queue)
	state := NewPortfolioState(100_000)

	// Entry estimate 100, 1% risk -> stop 99, 1000 at risk -> 1000 shares,
	// capped by exposure to 1000. Both funnels agree here.
	m.ProcessSignal(longSignal(), state, testBar(99, 101, 98, 100, 1e6))

	order := popOrder(t, queue)
	if order.Purpose != domain.PurposeOpen || order.Direction != domain.DirectionLong {
		t.Errorf("order = %+v, want long open", order)
	}
	if order.Qty != 1000 {
		t.Errorf("qty = %v, want 1000", order.Qty)
	}
	if order.PriceHint != nil {
		t.Error("entry orders carry no price hint, they fill at the next open")
	}
	if order.StopLoss != 99 || order.TakeProfit != 102 {
		t.Errorf("levels = %v/%v, want 99/102", order.StopLoss, order.TakeProfit)
	}
	if !state.Pending("AAPL") {
		t.Error("entry must lock the instrument")
	}
}

func TestPendingSignalDropped(t *testing.T) {
	queue := &eventQueue{}
	m := newOrderManager(queue)
	state := NewPortfolioState(100_000)
	state.SetPending("AAPL")

	m.ProcessSignal(longSignal(), state, testBar(99, 101, 98, 100, 1e6))

	if _, ok := queue.pop(); ok {
		t.Error("signals for locked instruments must be dropped")
	}
}

func TestOppositeSignalQueuesExit(t *testing.T) {
	queue := &eventQueue{}
	m := newOrderManager(queue)
	state := NewPortfolioState(100_000)
	placePosition(state, domain.DirectionLong, 100, 100, 98, 104)

	sig := longSignal()
	sig.Direction = domain.DirectionShort
	m.ProcessSignal(sig, state, testBar(99, 101, 98, 100, 1e6))

	order := popOrder(t, queue)
	if order.Purpose != domain.PurposeClose {
		t.Errorf("purpose = %v, want close", order.Purpose)
	}
	if order.Reason != domain.TriggerOppositeSignal {
		t.Errorf("reason = %v, want opposite_signal", order.Reason)
	}
	if order.Qty != 100 {
		t.Errorf("qty = %v, want the full position", order.Qty)
	}
	if order.PriceHint != nil {
		t.Error("strategy exits fill at the next open, not at a pinned level")
	}
}

func TestSameDirectionSignalIsNoOp(t *testing.T) {
	queue := &eventQueue{}
	m := newOrderManager(queue)
	state := NewPortfolioState(100_000)
	placePosition(state, domain.DirectionLong, 100, 100, 98, 104)

	m.ProcessSignal(longSignal(), state, testBar(99, 101, 98, 100, 1e6))

	if _, ok := queue.pop(); ok {
		t.Error("a confirming signal while holding must not emit orders")
	}
	if state.Pending("AAPL") {
		t.Error("a no-op signal must not lock the instrument")
	}
}

func TestEntryDroppedOnBadPrice(t *testing.T) {
	queue := &eventQueue{}
	m := newOrderManager(queue)
	state := NewPortfolioState(100_000)

	m.ProcessSignal(longSignal(), state, testBar(99, 101, 98, -1, 1e6))

	if _, ok := queue.pop(); ok {
		t.Error("non-positive entry estimates must drop the signal")
	}
}

func TestEntryDroppedWithoutBar(t *testing.T) {
	queue := &eventQueue{}
	m := newOrderManager(queue)
	state := NewPortfolioState(100_000)

	m.ProcessSignal(longSignal(), state, nil)

	if _, ok := queue.pop(); ok {
		t.Error("signals without market data must be dropped")
	}
	if state.Pending("AAPL") {
		t.Error("dropped signals must not lock the instrument")
	}
}
