package engine

import (
	"log/slog"

	"github.com/google/uuid"

	"quantbt/internal/domain"
)

// RiskMonitor provides passive position protection: on every bar it checks
// open positions against the bar's high/low and emits closing orders when a
// stop or target level was touched.
type RiskMonitor struct {
	queue  *eventQueue
	logger *slog.Logger
}

// NewRiskMonitor creates a monitor pushing exit orders onto queue.
func NewRiskMonitor(queue *eventQueue, logger *slog.Logger) *RiskMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RiskMonitor{queue: queue, logger: logger}
}

// CheckPositions evaluates the position for the bar's instrument, if any.
// Instruments with an order already in flight are skipped so a stop cannot
// fire twice or race a strategy exit.
func (m *RiskMonitor) CheckPositions(bar *domain.Bar, state *PortfolioState) {
	pos := state.Position(bar.Symbol)
	if pos == nil || state.Pending(bar.Symbol) {
		return
	}
	m.checkSingle(bar, pos, state)
}

// checkSingle applies the worst-case-first policy: the stop check runs
// before the target check within the same bar, so when both levels were
// touched the stop wins.
func (m *RiskMonitor) checkSingle(bar *domain.Bar, pos *domain.Position, state *PortfolioState) {
	if pos.Direction == domain.DirectionLong {
		if bar.Low <= pos.StopLoss {
			m.emitExit(bar, pos, domain.TriggerStopLoss, pos.StopLoss, state)
			return
		}
		if bar.High >= pos.TakeProfit {
			m.emitExit(bar, pos, domain.TriggerTakeProfit, pos.TakeProfit, state)
		}
		return
	}

	// Short positions mirror: a rising high breaches the stop, a falling
	// low reaches the target.
	if bar.High >= pos.StopLoss {
		m.emitExit(bar, pos, domain.TriggerStopLoss, pos.StopLoss, state)
		return
	}
	if bar.Low <= pos.TakeProfit {
		m.emitExit(bar, pos, domain.TriggerTakeProfit, pos.TakeProfit, state)
	}
}

// emitExit queues a full-size closing order pinned to the trigger level and
// locks the instrument until the fill lands.
func (m *RiskMonitor) emitExit(bar *domain.Bar, pos *domain.Position, reason domain.TriggerReason, level float64, state *PortfolioState) {
	price := level
	m.queue.push(domain.OrderEvent{
		ID:        uuid.NewString(),
		Symbol:    pos.Symbol,
		Timestamp: bar.Timestamp,
		Direction: pos.Direction,
		Purpose:   domain.PurposeClose,
		Qty:       pos.Qty,
		PriceHint: &price,
		Reason:    reason,
	})
	state.SetPending(pos.Symbol)

	m.logger.Info("protective exit triggered",
		"symbol", pos.Symbol, "reason", reason, "level", level,
		"bar_low", bar.Low, "bar_high", bar.High)
}
