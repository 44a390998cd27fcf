package optimize

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"

	"quantbt/internal/domain"
	"quantbt/internal/metrics"
)

// Step status values recorded in the WFO summary.
const (
	StepSuccess    = "success"
	StepNoSolution = "no_solution"
)

// tieBreakerMetric picks one trial off a multi-objective Pareto front.
const tieBreakerMetric = "calmar_ratio"

// StepResult is the outcome of one walk-forward step: the winning in-sample
// parameters and the trades they produced on unseen data.
type StepResult struct {
	Step         int
	Status       string
	BestTrial    int
	Params       map[string]float64
	TrainMetrics map[string]float64
	OOSTrades    []domain.ClosedTrade
}

// StepRunner executes one WFO step: random search on the training window,
// best-trial selection, then out-of-sample validation on the test window.
type StepRunner struct {
	objective *Objective
	space     *Space
	trials    int
	workers   int
	rng       *rand.Rand
	logger    *slog.Logger
}

// NewStepRunner wires a step runner. rng drives parameter sampling and must
// be shared across steps for a reproducible whole-run sequence.
func NewStepRunner(objective *Objective, space *Space, trials, workers int, rng *rand.Rand, logger *slog.Logger) *StepRunner {
	if workers < 1 {
		workers = 1
	}
	return &StepRunner{
		objective: objective,
		space:     space,
		trials:    trials,
		workers:   workers,
		rng:       rng,
		logger:    logger,
	}
}

// Run executes the full step. Parameter draws happen up front on the shared
// rng; evaluation then fans out over the worker pool, so the trial list is
// identical for a given seed regardless of worker count.
func (r *StepRunner) Run(ctx context.Context, step int, trainSlices, testSlices map[string][]domain.Bar) StepResult {
	draws := make([]map[string]float64, r.trials)
	for i := range draws {
		draws[i] = r.space.Sample(r.rng)
	}

	trials := make([]Trial, r.trials)
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.workers)
	for i := range draws {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			trials[i] = r.objective.Evaluate(ctx, i, draws[i], trainSlices)
		}(i)
	}
	wg.Wait()

	best, ok := r.selectBest(trials)
	if !ok {
		r.logger.Warn("no viable trial found", "step", step, "trials", r.trials)
		return StepResult{Step: step, Status: StepNoSolution}
	}

	r.logger.Info("in-sample search finished",
		"step", step, "best_trial", best.Number, "params", best.Params)

	return StepResult{
		Step:         step,
		Status:       StepSuccess,
		BestTrial:    best.Number,
		Params:       best.Params,
		TrainMetrics: best.Metrics,
		OOSTrades:    r.runOutOfSample(ctx, best.Params, testSlices),
	}
}

// selectBest picks the winning trial. With one target metric this is a
// plain best-by-direction scan; with several it is the Pareto front broken
// by the tie-breaker metric.
func (r *StepRunner) selectBest(trials []Trial) (Trial, bool) {
	valid := trials[:0:0]
	for _, t := range trials {
		if t.Valid {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return Trial{}, false
	}

	directions := make([]metrics.Direction, len(r.objective.Metrics))
	for i, key := range r.objective.Metrics {
		directions[i] = metrics.DirectionOf(key)
	}

	if len(directions) == 1 {
		best := valid[0]
		for _, t := range valid[1:] {
			if better(t.Values[0], best.Values[0], directions[0]) {
				best = t
			}
		}
		return best, true
	}

	front := paretoFront(valid, directions)
	r.logger.Info("pareto front computed", "size", len(front))

	tieKey := tieBreakerMetric
	if !metrics.Known(tieKey) {
		tieKey = r.objective.Metrics[0]
	}
	tieDir := metrics.DirectionOf(tieKey)

	best := front[0]
	for _, t := range front[1:] {
		if better(t.Metrics[tieKey], best.Metrics[tieKey], tieDir) {
			best = t
		}
	}
	return best, true
}

func better(a, b float64, dir metrics.Direction) bool {
	if dir == metrics.Minimize {
		return a < b
	}
	return a > b
}

// paretoFront returns the non-dominated trials. Trial a dominates b when a
// is at least as good on every metric and strictly better on one.
func paretoFront(trials []Trial, directions []metrics.Direction) []Trial {
	var front []Trial
	for i, cand := range trials {
		dominated := false
		for j, other := range trials {
			if i != j && dominates(other, cand, directions) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, cand)
		}
	}
	return front
}

func dominates(a, b Trial, directions []metrics.Direction) bool {
	strictlyBetter := false
	for k, dir := range directions {
		if better(b.Values[k], a.Values[k], dir) {
			return false
		}
		if better(a.Values[k], b.Values[k], dir) {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}

// runOutOfSample validates the winning parameters on the test window, one
// worker per instrument, and returns the merged trade list in exit order.
func (r *StepRunner) runOutOfSample(ctx context.Context, params map[string]float64, testSlices map[string][]domain.Bar) []domain.ClosedTrade {
	symbols := make([]string, 0, len(testSlices))
	for sym := range testSlices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	strategyParams, riskParams := SplitParams(params)
	capitalPerInstrument := r.objective.InitialCapital / float64(len(symbols))

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		trades []domain.ClosedTrade
	)
	sem := make(chan struct{}, r.workers)

	for _, sym := range symbols {
		bars := testSlices[sym]
		if len(bars) == 0 {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(sym string, bars []domain.Bar) {
			defer wg.Done()
			defer func() { <-sem }()

			got, err := r.objective.runInstrument(ctx, sym, capitalPerInstrument, strategyParams, riskParams, bars)
			if err != nil {
				r.logger.Error("out-of-sample run failed", "symbol", sym, "error", err)
				return
			}
			mu.Lock()
			trades = append(trades, got...)
			mu.Unlock()
		}(sym, bars)
	}
	wg.Wait()

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExitTime.Before(trades[j].ExitTime)
	})
	return trades
}
