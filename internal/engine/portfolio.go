package engine

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"quantbt/internal/domain"
)

// moneyPrecision is the decimal precision for capital arithmetic. Repeated
// accumulation across thousands of fills must not drift.
const moneyPrecision = 10

// TradeSink receives each completed round trip as an append-only record.
type TradeSink interface {
	Append(trade domain.ClosedTrade) error
}

// PortfolioState is the single source of truth for capital, open positions,
// pending-order locks, and closed-trade history within one simulation run.
// It is exclusively owned by that run and never shared.
type PortfolioState struct {
	initialCapital decimal.Decimal
	capital        decimal.Decimal
	positions      map[string]*domain.Position
	pending        map[string]bool
	closed         []domain.ClosedTrade
}

// NewPortfolioState creates an empty portfolio holding initialCapital cash.
func NewPortfolioState(initialCapital float64) *PortfolioState {
	c := decimal.NewFromFloat(initialCapital)
	return &PortfolioState{
		initialCapital: c,
		capital:        c,
		positions:      make(map[string]*domain.Position),
		pending:        make(map[string]bool),
	}
}

// Capital returns current cash. Entry notionals are already deducted on
// open, so this is also the amount available for new positions.
func (s *PortfolioState) Capital() float64 {
	f, _ := s.capital.Float64()
	return f
}

// InitialCapital returns the starting cash.
func (s *PortfolioState) InitialCapital() float64 {
	f, _ := s.initialCapital.Float64()
	return f
}

// AvailableCapital is the cash free for new entries.
func (s *PortfolioState) AvailableCapital() float64 { return s.Capital() }

// FrozenCapital is the entry notional locked in open positions.
func (s *PortfolioState) FrozenCapital() float64 {
	frozen := decimal.Zero
	for _, p := range s.positions {
		frozen = frozen.Add(decimal.NewFromFloat(p.Qty).Mul(decimal.NewFromFloat(p.EntryPrice)))
	}
	f, _ := frozen.Float64()
	return f
}

// TotalEquity approximates portfolio value as cash plus entry notionals.
func (s *PortfolioState) TotalEquity() float64 {
	return s.Capital() + s.FrozenCapital()
}

// Position returns the open position for symbol, or nil.
func (s *PortfolioState) Position(symbol string) *domain.Position {
	return s.positions[symbol]
}

// Positions returns a copy of the open position set.
func (s *PortfolioState) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(s.positions))
	for k, v := range s.positions {
		out[k] = *v
	}
	return out
}

// Pending reports whether symbol has an unfilled order in flight.
func (s *PortfolioState) Pending(symbol string) bool { return s.pending[symbol] }

// SetPending locks symbol against further signals until the next fill.
func (s *PortfolioState) SetPending(symbol string) { s.pending[symbol] = true }

// ClosedTrades returns the round-trip history in close order.
func (s *PortfolioState) ClosedTrades() []domain.ClosedTrade { return s.closed }

// Accountant applies fills to a PortfolioState: it opens and closes
// positions, moves cash, and records closed trades.
type Accountant struct {
	state  *PortfolioState
	sink   TradeSink
	logger *slog.Logger
}

// NewAccountant creates an accountant over state. sink may be nil.
func NewAccountant(state *PortfolioState, sink TradeSink, logger *slog.Logger) *Accountant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accountant{state: state, sink: sink, logger: logger}
}

// OnFill routes a fill to open or close handling. Any fill clears the
// pending lock, including fills that end up ignored.
func (a *Accountant) OnFill(fill domain.FillEvent) {
	delete(a.state.pending, fill.Symbol)

	if fill.Purpose == domain.PurposeClose {
		pos := a.state.positions[fill.Symbol]
		if pos == nil {
			a.logger.Warn("close fill without an open position", "symbol", fill.Symbol, "order_id", fill.OrderID)
			return
		}
		a.closePosition(fill, pos)
		return
	}
	a.openPosition(fill)
}

// openPosition deducts the entry cost from cash and records the position.
func (a *Accountant) openPosition(fill domain.FillEvent) {
	cost := decimal.NewFromFloat(fill.Price).
		Mul(decimal.NewFromFloat(fill.Qty)).
		Add(decimal.NewFromFloat(fill.Commission))
	a.state.capital = a.state.capital.Sub(cost).Round(moneyPrecision)

	a.state.positions[fill.Symbol] = &domain.Position{
		Symbol:          fill.Symbol,
		Direction:       fill.Direction,
		Qty:             fill.Qty,
		EntryPrice:      fill.Price,
		EntryTime:       fill.Timestamp,
		StopLoss:        fill.StopLoss,
		TakeProfit:      fill.TakeProfit,
		EntryCommission: fill.Commission,
	}

	a.logger.Info("position opened",
		"symbol", fill.Symbol,
		"direction", fill.Direction,
		"qty", fill.Qty,
		"price", fill.Price,
		"stop_loss", fill.StopLoss,
		"take_profit", fill.TakeProfit)
}

// closePosition realizes PnL: cash gets back the entry notional plus gross
// PnL minus the exit commission, so the net round-trip effect on capital is
// exactly the net PnL.
func (a *Accountant) closePosition(fill domain.FillEvent, pos *domain.Position) {
	entry := decimal.NewFromFloat(pos.EntryPrice)
	exit := decimal.NewFromFloat(fill.Price)
	qty := decimal.NewFromFloat(fill.Qty)

	var gross decimal.Decimal
	if pos.Direction == domain.DirectionLong {
		gross = exit.Sub(entry).Mul(qty)
	} else {
		gross = entry.Sub(exit).Mul(qty)
	}

	entryNotional := entry.Mul(qty)
	exitCommission := decimal.NewFromFloat(fill.Commission)
	proceeds := entryNotional.Add(gross).Sub(exitCommission)
	a.state.capital = a.state.capital.Add(proceeds).Round(moneyPrecision)

	net := gross.Sub(decimal.NewFromFloat(pos.EntryCommission)).Sub(exitCommission).Round(moneyPrecision)
	grossF, _ := gross.Float64()
	netF, _ := net.Float64()

	trade := domain.ClosedTrade{
		ID:         uuid.NewString(),
		Symbol:     fill.Symbol,
		Direction:  pos.Direction,
		Qty:        fill.Qty,
		EntryTime:  pos.EntryTime,
		ExitTime:   fill.Timestamp,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill.Price,
		GrossPnL:   grossF,
		NetPnL:     netF,
		Commission: pos.EntryCommission + fill.Commission,
		ExitReason: fill.Reason,
	}
	a.state.closed = append(a.state.closed, trade)
	delete(a.state.positions, fill.Symbol)

	if a.sink != nil {
		if err := a.sink.Append(trade); err != nil {
			a.logger.Warn("trade sink append failed", "symbol", trade.Symbol, "error", err)
		}
	}

	a.logger.Info("position closed",
		"symbol", fill.Symbol,
		"reason", fill.Reason,
		"net_pnl", netF,
		"capital", a.state.Capital())
}
