package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/store"
	"quantbt/internal/strategy"
	"quantbt/internal/util"
)

// Monitor supervises one strategy evaluation task per configured symbol. A
// ticker loop diffs the desired symbol set against running tasks, starting
// missing ones and cancelling removed ones; a crashed task is restarted on
// the next tick. Each task warms its window up from the bar store and then
// evaluates the rolling buffer whenever a newer bar has arrived.
type Monitor struct {
	cfg      config.LiveConfig
	registry *strategy.Registry
	bars     store.BarStore
	feed     BarFeed
	handlers []SignalHandler
	calendar *util.TradingCalendar
	buffer   *Buffer
	log      *slog.Logger

	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor. bars may be nil to skip warmup; calendar may
// be nil to disable market-hours gating.
func NewMonitor(cfg config.LiveConfig, registry *strategy.Registry, bars store.BarStore, feed BarFeed, handlers []SignalHandler, calendar *util.TradingCalendar, log *slog.Logger) (*Monitor, error) {
	if registry == nil {
		return nil, errors.New("live: registry is required")
	}
	if feed == nil {
		return nil, errors.New("live: bar feed is required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("live: no symbols configured")
	}
	return &Monitor{
		cfg:      cfg,
		registry: registry,
		bars:     bars,
		feed:     feed,
		handlers: handlers,
		calendar: calendar,
		buffer:   NewBuffer(cfg.BufferSize),
		log:      log,
		tasks:    make(map[string]*task),
	}, nil
}

// Run starts the feed consumer and the supervisor loop. It blocks until ctx
// is cancelled or the feed fails permanently; either way every task is torn
// down before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- m.feed.Run(ctx, m.buffer.Append)
	}()

	m.log.Info("live monitor started",
		"strategy", m.cfg.Strategy.Name,
		"symbols", m.cfg.Symbols,
		"poll_interval", m.cfg.PollInterval.Std())

	m.reconcile(ctx)

	ticker := time.NewTicker(m.cfg.PollInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return ctx.Err()
		case err := <-feedErr:
			cancel()
			m.stopAll()
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("bar feed: %w", err)
			}
			return err
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

// reconcile diffs desired symbols against running tasks.
func (m *Monitor) reconcile(ctx context.Context) {
	desired := make(map[string]bool, len(m.cfg.Symbols))
	for _, sym := range m.cfg.Symbols {
		desired[sym] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for sym, t := range m.tasks {
		select {
		case <-t.done:
			// Task exited on its own; forget it so it restarts below.
			delete(m.tasks, sym)
		default:
		}
	}

	for sym, t := range m.tasks {
		if desired[sym] {
			continue
		}
		t.cancel()
		delete(m.tasks, sym)
		m.log.Info("task stopped", "symbol", sym)
	}

	for sym := range desired {
		if _, running := m.tasks[sym]; running {
			continue
		}
		tctx, cancel := context.WithCancel(ctx)
		t := &task{cancel: cancel, done: make(chan struct{})}
		m.tasks[sym] = t
		go m.runTask(tctx, sym, t.done)
		m.log.Info("task started", "symbol", sym)
	}
}

func (m *Monitor) stopAll() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = make(map[string]*task)
	m.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// runTask is one evaluation loop: build the strategy, warm up the window,
// then re-evaluate whenever the buffer holds a bar newer than the last one
// evaluated. Evaluation happens on a private snapshot so the buffer lock is
// never held across strategy code.
func (m *Monitor) runTask(ctx context.Context, symbol string, done chan struct{}) {
	defer close(done)
	log := m.log.With("symbol", symbol, "strategy", m.cfg.Strategy.Name)

	strat, err := m.registry.Build(m.cfg.Strategy.Name, m.cfg.Strategy.Params)
	if err != nil {
		log.Error("building strategy failed", "err", err)
		return
	}

	if err := m.warmup(ctx, symbol); err != nil {
		log.Warn("warmup unavailable, waiting for live bars", "err", err)
	}

	ticker := time.NewTicker(m.cfg.PollInterval.Std())
	defer ticker.Stop()

	var lastEval time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.calendar != nil && !m.calendar.IsMarketOpen(time.Now()) {
			continue
		}

		window := m.buffer.Snapshot(symbol)
		if len(window) < strat.MinHistory() {
			continue
		}
		latest := window[len(window)-1].Timestamp
		if !latest.After(lastEval) {
			continue
		}
		lastEval = latest

		window = strat.Precompute(window)
		if sig := strat.OnBar(window); sig != nil {
			m.emit(ctx, sig)
		}
	}
}

// warmup preloads the symbol's window from the bar store so a strategy can
// evaluate from the first live bar instead of waiting MinHistory bars.
func (m *Monitor) warmup(ctx context.Context, symbol string) error {
	if m.bars == nil || m.cfg.WarmupBars <= 0 {
		return nil
	}

	// Daily history covering WarmupBars trading days, with slack for
	// weekends and holidays.
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -2*m.cfg.WarmupBars-14)
	hist, err := m.bars.ReadBars(ctx, symbol, start, end)
	if err != nil {
		return err
	}
	if len(hist) > m.cfg.WarmupBars {
		hist = hist[len(hist)-m.cfg.WarmupBars:]
	}
	m.buffer.Preload(symbol, hist)
	m.log.Debug("window warmed up", "symbol", symbol, "bars", len(hist))
	return nil
}

// emit fans a signal out to every handler. Handler failures are logged and
// swallowed so a broken sink cannot stop the monitor.
func (m *Monitor) emit(ctx context.Context, sig *domain.SignalEvent) {
	for _, h := range m.handlers {
		if err := h.HandleSignal(ctx, m.cfg.Strategy.Name, *sig); err != nil {
			m.log.Warn("signal handler failed",
				"symbol", sig.Symbol, "err", err)
		}
	}
}
