package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/engine"
	"quantbt/internal/metrics"
	"quantbt/internal/strategy"
)

// StepSink receives finished step results for persistence. The runner
// tolerates a nil sink and logs instead of failing on sink errors, so a
// broken database never kills a multi-hour optimization.
type StepSink interface {
	SaveStep(step StepResult) error
}

// Result is the aggregate outcome of a walk-forward run: the per-step
// records plus the stitched out-of-sample performance, which is the honest
// estimate of how the strategy would have traded.
type Result struct {
	Steps     []StepResult
	OOSTrades []domain.ClosedTrade
	Summary   metrics.Summary
}

// Runner orchestrates the whole walk-forward optimization across all
// configured instruments. Steps run sequentially; parallelism lives inside
// each step's trial and instrument fan-out.
type Runner struct {
	cfg      *config.Config
	registry *strategy.Registry
	sink     StepSink
	logger   *slog.Logger
}

// NewRunner wires a walk-forward runner. sink may be nil.
func NewRunner(cfg *config.Config, registry *strategy.Registry, sink StepSink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, registry: registry, sink: sink, logger: logger}
}

// Run executes the optimization over pre-loaded per-instrument history.
// Instruments too short for the configured chunk layout are skipped with a
// warning; the run fails only when no instrument survives or the window
// layout itself is impossible.
func (r *Runner) Run(ctx context.Context, data map[string][]domain.Bar) (*Result, error) {
	opt := r.cfg.Optimizer

	for _, key := range opt.Metrics {
		if !metrics.Known(key) {
			return nil, fmt.Errorf("unknown optimization metric %q", key)
		}
	}

	strategyName := r.cfg.Backtest.Strategy.Name
	strategyDefs, err := r.registry.Defs(strategyName)
	if err != nil {
		return nil, err
	}
	space := NewSpace(strategyDefs, engine.ProfilerDefs(r.cfg.Risk.Profile))

	// Window layout is validated before any trial spends compute.
	windows, err := r.splitInstruments(data, opt)
	if err != nil {
		return nil, err
	}
	numSteps := 0
	for _, w := range windows {
		numSteps = len(w)
		break
	}

	objective := &Objective{
		Registry:       r.registry,
		StrategyName:   strategyName,
		ProfilerKind:   r.cfg.Risk.Profile,
		ATRKey:         r.cfg.Risk.ATRKey,
		CommissionRate: r.cfg.Backtest.CommissionRate,
		SlippageCoeff:  r.cfg.Backtest.SlippageCoeff,
		ExposureCap:    r.cfg.Risk.ExposureCap,
		RulesFor:       r.cfg.Backtest.RulesFor,
		InitialCapital: r.cfg.Backtest.InitialCapital,
		Annualization:  metrics.DefaultAnnualization,
		Metrics:        opt.Metrics,
		Logger:         r.logger,
	}

	rng := rand.New(rand.NewSource(opt.Seed))
	stepRunner := NewStepRunner(objective, space, opt.Trials, opt.Workers, rng, r.logger)

	result := &Result{}
	for step := 1; step <= numSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("optimization cancelled at step %d: %w", step, err)
		}

		trainSlices := make(map[string][]domain.Bar, len(windows))
		testSlices := make(map[string][]domain.Bar, len(windows))
		for sym, ws := range windows {
			trainSlices[sym] = ws[step-1].Train
			testSlices[sym] = ws[step-1].Test
		}

		r.logger.Info("walk-forward step starting", "step", step, "of", numSteps)
		stepResult := stepRunner.Run(ctx, step, trainSlices, testSlices)
		result.Steps = append(result.Steps, stepResult)
		result.OOSTrades = append(result.OOSTrades, stepResult.OOSTrades...)

		if r.sink != nil {
			if err := r.sink.SaveStep(stepResult); err != nil {
				r.logger.Warn("step persistence failed", "step", step, "error", err)
			}
		}
	}

	sort.SliceStable(result.OOSTrades, func(i, j int) bool {
		return result.OOSTrades[i].ExitTime.Before(result.OOSTrades[j].ExitTime)
	})
	calc := metrics.NewCalculator(result.OOSTrades, r.cfg.Backtest.InitialCapital, metrics.DefaultAnnualization)
	result.Summary = calc.All()

	r.logger.Info("walk-forward optimization finished",
		"steps", numSteps,
		"oos_trades", len(result.OOSTrades),
		"oos_pnl", result.Summary.PnLAbs)
	return result, nil
}

// splitInstruments chunks each instrument's history and builds its window
// sequence. Instruments shorter than the chunk count cannot align with the
// shared step grid and are dropped.
func (r *Runner) splitInstruments(data map[string][]domain.Bar, opt config.OptimizerConfig) (map[string][]Window, error) {
	windows := make(map[string][]Window, len(data))
	for sym, bars := range data {
		if len(bars) < opt.TotalChunks {
			r.logger.Warn("instrument skipped, not enough history",
				"symbol", sym, "bars", len(bars), "chunks", opt.TotalChunks)
			continue
		}
		chunks := SplitChunks(bars, opt.TotalChunks)
		ws, err := Windows(chunks, opt.TrainChunks, opt.TestChunks)
		if err != nil {
			return nil, err
		}
		windows[sym] = ws
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no instrument has enough history for %d chunks",
			domain.ErrInsufficientData, opt.TotalChunks)
	}
	return windows, nil
}
