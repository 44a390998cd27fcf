package engine

import (
	"context"
	"fmt"
	"log/slog"

	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// RunConfig wires one simulation run. It is constructed once per run and
// never mutated afterwards.
type RunConfig struct {
	Symbol         string
	InitialCapital float64
	CommissionRate float64
	SlippageCoeff  float64
	ExposureCap    float64
	Rules          domain.InstrumentRules
	ProfilerKind   string
	ProfilerParams map[string]float64
	ATRKey         string
	Strategy       strategy.Strategy
	TradeSink      TradeSink
	Logger         *slog.Logger
}

// Report is the terminal output of a run: outcome, final accounting, and
// the trade history. On failure the fields hold the partial state reached
// before the error.
type Report struct {
	Result         domain.Result
	Symbol         string
	InitialCapital float64
	FinalCapital   float64
	Trades         []domain.ClosedTrade
	OpenPositions  map[string]domain.Position
	Bars           int
}

// Engine drives the bar-by-bar event loop for a single instrument. Each bar
// passes through three ordered phases, and the event queue fully drains
// inside each phase before the next begins:
//
//  1. execution at the bar's open (orders buffered by the previous bar)
//  2. risk monitoring against the bar's high/low
//  3. strategy evaluation at the bar's close
//
// Market orders produced in phase 3 are buffered and fill at the next bar's
// open, which is what keeps signal computation causal.
type Engine struct {
	cfg    RunConfig
	status domain.RunStatus
	logger *slog.Logger

	queue        *eventQueue
	state        *PortfolioState
	accountant   *Accountant
	orderManager *OrderManager
	monitor      *RiskMonitor
	simulator    *Simulator

	// Market order carried from the previous bar's strategy phase.
	bufferedOrder *domain.OrderEvent
	barsProcessed int
}

// New assembles an engine from the run configuration.
func New(cfg RunConfig) (*Engine, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("engine: strategy is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("symbol", cfg.Symbol, "strategy", cfg.Strategy.Name())

	profiler, err := BuildProfiler(cfg.ProfilerKind, cfg.ProfilerParams, cfg.ATRKey)
	if err != nil {
		return nil, err
	}

	queue := &eventQueue{}
	state := NewPortfolioState(cfg.InitialCapital)
	sizer := NewSizer(cfg.Rules, cfg.ExposureCap, logger)

	return &Engine{
		cfg:          cfg,
		status:       domain.StatusIdle,
		logger:       logger,
		queue:        queue,
		state:        state,
		accountant:   NewAccountant(state, cfg.TradeSink, logger),
		orderManager: NewOrderManager(queue, profiler, sizer, logger),
		monitor:      NewRiskMonitor(queue, logger),
		simulator:    NewSimulator(cfg.CommissionRate, cfg.SlippageCoeff),
	}, nil
}

// Status returns the engine's lifecycle state.
func (e *Engine) Status() domain.RunStatus { return e.status }

// Run replays bars through the three-phase loop and returns a report. It
// never panics past the caller: any error terminates the run as Failed with
// the partial state collected so far.
func (e *Engine) Run(ctx context.Context, bars []domain.Bar) *Report {
	e.status = domain.StatusRunning

	if len(bars) == 0 {
		return e.fail(fmt.Errorf("%w: no bars for %s", domain.ErrDataUnavailable, e.cfg.Symbol))
	}

	enriched := e.cfg.Strategy.Precompute(bars)
	if minHist := e.cfg.Strategy.MinHistory(); len(enriched) < minHist {
		return e.fail(fmt.Errorf("%w: strategy %s needs %d bars, have %d",
			domain.ErrInsufficientData, e.cfg.Strategy.Name(), minHist, len(enriched)))
	}

	for i := range enriched {
		if err := ctx.Err(); err != nil {
			return e.fail(fmt.Errorf("run cancelled: %w", err))
		}
		if err := e.processBar(enriched, i); err != nil {
			return e.fail(err)
		}
		e.barsProcessed++
	}

	e.status = domain.StatusFinished
	e.logger.Info("run finished",
		"bars", len(enriched),
		"trades", len(e.state.ClosedTrades()),
		"final_capital", e.state.Capital())
	return e.report(domain.Result{Status: domain.StatusFinished})
}

func (e *Engine) processBar(enriched []domain.Bar, i int) error {
	bar := &enriched[i]

	// Phase 1: execution at the open. The buffered market order from the
	// previous bar's close fills against this bar.
	if e.bufferedOrder != nil {
		order := *e.bufferedOrder
		e.bufferedOrder = nil
		fill, err := e.simulator.Execute(order, bar)
		if err != nil {
			return err
		}
		e.queue.push(fill)
		if err := e.drainQueue(bar); err != nil {
			return err
		}
	}

	// Phase 2: risk monitoring inside the bar. Stop and target exits are
	// price-triggered, so they execute within this same bar.
	e.monitor.CheckPositions(bar, e.state)
	if err := e.drainQueue(bar); err != nil {
		return err
	}

	// Phase 3: strategy decision at the close.
	windowStart := i + 1 - e.cfg.Strategy.MinHistory()
	if windowStart < 0 {
		windowStart = 0
	}
	if sig := e.cfg.Strategy.OnBar(enriched[windowStart : i+1]); sig != nil {
		e.queue.push(*sig)
	}
	return e.drainQueue(bar)
}

// drainQueue empties the event bus, routing each event to its consumer.
// Market orders (no pinned price) are buffered for the next bar's open;
// level-triggered orders execute immediately against the current bar.
func (e *Engine) drainQueue(bar *domain.Bar) error {
	for {
		ev, ok := e.queue.pop()
		if !ok {
			return nil
		}

		switch event := ev.(type) {
		case domain.SignalEvent:
			e.orderManager.ProcessSignal(event, e.state, bar)

		case domain.OrderEvent:
			if event.PriceHint == nil {
				e.bufferedOrder = &event
				continue
			}
			fill, err := e.simulator.Execute(event, bar)
			if err != nil {
				return err
			}
			e.queue.push(fill)

		case domain.FillEvent:
			e.accountant.OnFill(event)

		default:
			return fmt.Errorf("unexpected event kind %q in queue", ev.Kind())
		}
	}
}

func (e *Engine) fail(err error) *Report {
	e.status = domain.StatusFailed
	e.logger.Error("run failed", "error", err)
	return e.report(domain.Result{Status: domain.StatusFailed, Message: err.Error()})
}

func (e *Engine) report(result domain.Result) *Report {
	return &Report{
		Result:         result,
		Symbol:         e.cfg.Symbol,
		InitialCapital: e.state.InitialCapital(),
		FinalCapital:   e.state.Capital(),
		Trades:         e.state.ClosedTrades(),
		OpenPositions:  e.state.Positions(),
		Bars:           e.barsProcessed,
	}
}
