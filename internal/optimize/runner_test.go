package optimize

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/strategy"
	"quantbt/internal/util"
)

// flipStrategy goes long after an up close and short after a down close,
// which guarantees steady trading on zigzag data.
type flipStrategy struct {
	params map[string]float64
}

func (s *flipStrategy) Name() string                              { return "flip" }
func (s *flipStrategy) Params() map[string]float64                { return s.params }
func (s *flipStrategy) MinHistory() int                           { return 2 }
func (s *flipStrategy) Precompute(bars []domain.Bar) []domain.Bar { return bars }

func (s *flipStrategy) OnBar(window []domain.Bar) *domain.SignalEvent {
	if len(window) < 2 {
		return nil
	}
	cur := window[len(window)-1]
	prev := window[len(window)-2]

	dir := domain.DirectionLong
	if cur.Close < prev.Close {
		dir = domain.DirectionShort
	}
	return &domain.SignalEvent{
		Symbol:    cur.Symbol,
		Timestamp: cur.Timestamp,
		Direction: dir,
		Reason:    domain.TriggerSignal,
	}
}

func flipRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register("flip", strategy.Entry{
		Factory: func(params map[string]float64) (strategy.Strategy, error) {
			return &flipStrategy{params: params}, nil
		},
		Defs: []strategy.ParamDef{
			{Name: "span", Type: strategy.ParamInt, Default: 2, Low: 1, High: 3, Step: 1, Optimizable: true},
		},
	})
	return r
}

func zigzagBars(symbol string, n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	base := time.Date(2025, 1, 2, 16, 0, 0, 0, time.UTC)
	for i := range bars {
		clos := 100.0
		if i%2 == 1 {
			clos = 101
		}
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: base.AddDate(0, 0, i),
			Open:      clos,
			High:      clos + 0.3,
			Low:       clos - 0.3,
			Close:     clos,
			Volume:    1e6,
		}
	}
	return bars
}

func wfoConfig() *config.Config {
	return &config.Config{
		Backtest: config.BacktestConfig{
			InitialCapital: 100_000,
			Strategy:       config.StrategyConfig{Name: "flip"},
		},
		Risk: config.RiskConfig{
			Profile:     "fixed",
			ATRKey:      "atr",
			ExposureCap: 0.5,
		},
		Optimizer: config.OptimizerConfig{
			TotalChunks: 6,
			TrainChunks: 4,
			TestChunks:  1,
			Trials:      4,
			Seed:        7,
			Workers:     2,
			Metrics:     []string{"pnl"},
		},
	}
}

type memoryStepSink struct {
	steps []StepResult
}

func (s *memoryStepSink) SaveStep(step StepResult) error {
	s.steps = append(s.steps, step)
	return nil
}

func TestWalkForwardRun(t *testing.T) {
	logger := util.NewLoggerTo(io.Discard, "error")
	sink := &memoryStepSink{}
	runner := NewRunner(wfoConfig(), flipRegistry(), sink, logger)

	data := map[string][]domain.Bar{
		"AAPL": zigzagBars("AAPL", 120),
		"MSFT": zigzagBars("MSFT", 120),
	}

	res, err := runner.Run(context.Background(), data)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 6 - 4 - 1 + 1 = 2 steps.
	if len(res.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(res.Steps))
	}
	for _, step := range res.Steps {
		if step.Status != StepSuccess {
			t.Errorf("step %d status = %s, want success", step.Step, step.Status)
			continue
		}
		if len(step.Params) == 0 {
			t.Errorf("step %d has no winning params", step.Step)
		}
		if _, ok := step.Params["rm_risk_pct"]; !ok {
			t.Errorf("step %d params lack the risk dimension: %v", step.Step, step.Params)
		}
		if len(step.OOSTrades) == 0 {
			t.Errorf("step %d produced no out-of-sample trades", step.Step)
		}
	}

	if len(res.OOSTrades) == 0 {
		t.Fatal("expected stitched out-of-sample trades")
	}
	for i := 1; i < len(res.OOSTrades); i++ {
		if res.OOSTrades[i].ExitTime.Before(res.OOSTrades[i-1].ExitTime) {
			t.Fatal("out-of-sample trades are not in exit order")
		}
	}
	if res.Summary.TotalTrades != len(res.OOSTrades) {
		t.Errorf("summary counts %d trades, have %d", res.Summary.TotalTrades, len(res.OOSTrades))
	}
	if len(sink.steps) != 2 {
		t.Errorf("sink saw %d steps, want 2", len(sink.steps))
	}
}

func TestRunReproducible(t *testing.T) {
	logger := util.NewLoggerTo(io.Discard, "error")
	data := map[string][]domain.Bar{"AAPL": zigzagBars("AAPL", 120)}

	a, err := NewRunner(wfoConfig(), flipRegistry(), nil, logger).Run(context.Background(), data)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := NewRunner(wfoConfig(), flipRegistry(), nil, logger).Run(context.Background(), data)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(a.OOSTrades) != len(b.OOSTrades) {
		t.Fatalf("trade counts differ: %d vs %d", len(a.OOSTrades), len(b.OOSTrades))
	}
	for i := range a.Steps {
		for k, v := range a.Steps[i].Params {
			if b.Steps[i].Params[k] != v {
				t.Errorf("step %d param %s differs: %v vs %v", i+1, k, v, b.Steps[i].Params[k])
			}
		}
	}
}

func TestRunRejectsUnknownMetric(t *testing.T) {
	cfg := wfoConfig()
	cfg.Optimizer.Metrics = []string{"alpha_decay"}
	runner := NewRunner(cfg, flipRegistry(), nil, util.NewLoggerTo(io.Discard, "error"))

	_, err := runner.Run(context.Background(), map[string][]domain.Bar{"AAPL": zigzagBars("AAPL", 120)})
	if err == nil || !strings.Contains(err.Error(), "alpha_decay") {
		t.Errorf("expected unknown metric error, got %v", err)
	}
}

func TestRunRejectsImpossibleWindow(t *testing.T) {
	cfg := wfoConfig()
	cfg.Optimizer.TrainChunks = 6
	runner := NewRunner(cfg, flipRegistry(), nil, util.NewLoggerTo(io.Discard, "error"))

	_, err := runner.Run(context.Background(), map[string][]domain.Bar{"AAPL": zigzagBars("AAPL", 120)})
	if !errors.Is(err, domain.ErrInsufficientWindow) {
		t.Errorf("expected ErrInsufficientWindow, got %v", err)
	}
}

func TestRunSkipsShortInstruments(t *testing.T) {
	logger := util.NewLoggerTo(io.Discard, "error")
	runner := NewRunner(wfoConfig(), flipRegistry(), nil, logger)

	data := map[string][]domain.Bar{
		"AAPL": zigzagBars("AAPL", 120),
		"TINY": zigzagBars("TINY", 3),
	}
	res, err := runner.Run(context.Background(), data)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, tr := range res.OOSTrades {
		if tr.Symbol == "TINY" {
			t.Fatal("short instrument should have been skipped")
		}
	}

	_, err = runner.Run(context.Background(), map[string][]domain.Bar{"TINY": zigzagBars("TINY", 3)})
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData with no usable instrument, got %v", err)
	}
}
