package engine

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"quantbt/internal/domain"
)

// eventQueue is the FIFO bus connecting engine phases. Draining order is
// part of the engine's determinism contract, so this is a plain slice with
// no locking; a run never crosses goroutines.
type eventQueue struct {
	events []domain.Event
}

func (q *eventQueue) push(e domain.Event) { q.events = append(q.events, e) }

func (q *eventQueue) pop() (domain.Event, bool) {
	if len(q.events) == 0 {
		return nil, false
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e, true
}

// OrderManager turns strategy signals into sized, risk-profiled orders.
type OrderManager struct {
	queue    *eventQueue
	profiler Profiler
	sizer    *Sizer
	logger   *slog.Logger
}

// NewOrderManager creates an order manager pushing onto queue.
func NewOrderManager(queue *eventQueue, profiler Profiler, sizer *Sizer, logger *slog.Logger) *OrderManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderManager{queue: queue, profiler: profiler, sizer: sizer, logger: logger}
}

// ProcessSignal routes a signal to entry or exit handling. Signals for
// instruments with an order in flight are dropped; the pending lock is the
// idempotency guard against doubled entries.
func (m *OrderManager) ProcessSignal(sig domain.SignalEvent, state *PortfolioState, lastBar *domain.Bar) {
	if state.Pending(sig.Symbol) {
		m.logger.Debug("signal ignored, order in flight", "symbol", sig.Symbol)
		return
	}

	if pos := state.Position(sig.Symbol); pos != nil {
		m.handleExitSignal(sig, state, pos)
		return
	}
	m.handleEntrySignal(sig, state, lastBar)
}

// handleEntrySignal runs the risk profile and sizing funnel against the
// signal bar's close as the entry estimate, then queues a market order for
// the next bar's open.
func (m *OrderManager) handleEntrySignal(sig domain.SignalEvent, state *PortfolioState, lastBar *domain.Bar) {
	if lastBar == nil {
		m.logger.Warn("no market data for signal, dropped", "symbol", sig.Symbol)
		return
	}

	idealEntry := lastBar.Close
	if idealEntry <= 0 {
		m.logger.Warn("non-positive entry estimate, signal dropped", "symbol", sig.Symbol, "price", idealEntry)
		return
	}

	profile, err := m.profiler.Profile(idealEntry, sig.Direction, state.Capital(), lastBar)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRiskInput) {
			m.logger.Warn("risk profile rejected signal", "symbol", sig.Symbol, "error", err)
			return
		}
		m.logger.Error("risk profile failed", "symbol", sig.Symbol, "error", err)
		return
	}

	qty := m.sizer.Size(profile, state.Capital(), idealEntry)
	if qty <= 0 {
		m.logger.Debug("sized quantity below instrument minimum, no trade", "symbol", sig.Symbol)
		return
	}

	// Buying-power check against free cash.
	cost := qty * idealEntry
	if cost > state.AvailableCapital() {
		m.logger.Warn("insufficient capital for entry",
			"symbol", sig.Symbol, "cost", cost, "available", state.AvailableCapital())
		return
	}

	m.queue.push(domain.OrderEvent{
		ID:         uuid.NewString(),
		Symbol:     sig.Symbol,
		Timestamp:  sig.Timestamp,
		Direction:  sig.Direction,
		Purpose:    domain.PurposeOpen,
		Qty:        qty,
		Reason:     domain.TriggerSignal,
		StopLoss:   profile.StopLoss,
		TakeProfit: profile.TakeProfit,
	})
	state.SetPending(sig.Symbol)

	m.logger.Info("entry order queued",
		"symbol", sig.Symbol, "direction", sig.Direction, "qty", qty)
}

// handleExitSignal closes the full position when the signal points against
// it. A same-direction signal while holding is a no-op.
func (m *OrderManager) handleExitSignal(sig domain.SignalEvent, state *PortfolioState, pos *domain.Position) {
	if sig.Direction == pos.Direction {
		return
	}

	m.queue.push(domain.OrderEvent{
		ID:        uuid.NewString(),
		Symbol:    sig.Symbol,
		Timestamp: sig.Timestamp,
		Direction: pos.Direction,
		Purpose:   domain.PurposeClose,
		Qty:       pos.Qty,
		Reason:    domain.TriggerOppositeSignal,
	})
	state.SetPending(sig.Symbol)

	m.logger.Info("exit order queued",
		"symbol", sig.Symbol, "qty", pos.Qty, "reason", domain.TriggerOppositeSignal)
}
