package optimize

import (
	"context"
	"log/slog"
	"sort"

	"quantbt/internal/domain"
	"quantbt/internal/engine"
	"quantbt/internal/metrics"
	"quantbt/internal/strategy"
)

// sentinelScore marks a failed trial. The magnitude puts it behind any real
// metric value in either optimization direction.
const sentinelScore = 1e9

// Objective evaluates one parameter assignment over the training slices of
// every instrument and scores the combined portfolio.
type Objective struct {
	Registry       *strategy.Registry
	StrategyName   string
	ProfilerKind   string
	ATRKey         string
	CommissionRate float64
	SlippageCoeff  float64
	ExposureCap    float64
	RulesFor       func(symbol string) domain.InstrumentRules
	InitialCapital float64
	Annualization  int
	Metrics        []string
	Logger         *slog.Logger
}

// Trial is one scored parameter assignment.
type Trial struct {
	Number  int
	Params  map[string]float64
	Values  []float64          // target metric values, aligned with Objective.Metrics
	Metrics map[string]float64 // full metric set for reporting
	Valid   bool
}

// Evaluate backtests params on each instrument's slice and computes the
// portfolio metrics. Capital is split equally across instruments; trades
// are merged in exit-time order before scoring. Any failure yields an
// invalid trial with sentinel scores instead of an error, so one bad
// parameter draw never aborts the search.
func (o *Objective) Evaluate(ctx context.Context, number int, params map[string]float64, slices map[string][]domain.Bar) Trial {
	trial := Trial{Number: number, Params: params}

	symbols := make([]string, 0, len(slices))
	for sym := range slices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	strategyParams, riskParams := SplitParams(params)
	capitalPerInstrument := o.InitialCapital / float64(len(symbols))

	var allTrades []domain.ClosedTrade
	for _, sym := range symbols {
		bars := slices[sym]
		if len(bars) == 0 {
			continue
		}

		trades, err := o.runInstrument(ctx, sym, capitalPerInstrument, strategyParams, riskParams, bars)
		if err != nil {
			o.Logger.Error("trial backtest failed", "trial", number, "symbol", sym, "error", err)
			return o.sentinel(trial)
		}
		allTrades = append(allTrades, trades...)
	}

	if len(allTrades) == 0 {
		return o.sentinel(trial)
	}
	sort.SliceStable(allTrades, func(i, j int) bool {
		return allTrades[i].ExitTime.Before(allTrades[j].ExitTime)
	})

	calc := metrics.NewCalculator(allTrades, o.InitialCapital, o.Annualization)
	if !calc.Valid() {
		return o.sentinel(trial)
	}

	summary := calc.All()
	trial.Metrics = summary.Values
	trial.Values = make([]float64, len(o.Metrics))
	for i, key := range o.Metrics {
		trial.Values[i] = summary.Values[key]
	}
	trial.Valid = true
	return trial
}

// runInstrument backtests one instrument slice with the split parameter
// maps and returns its closed trades. Runs that finish without trading
// return an empty slice, not an error; a run that fails outright does not
// contribute trades either, its failure is the engine's to report.
func (o *Objective) runInstrument(ctx context.Context, symbol string, capital float64, strategyParams, riskParams map[string]float64, bars []domain.Bar) ([]domain.ClosedTrade, error) {
	strat, err := o.Registry.Build(o.StrategyName, strategyParams)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engine.RunConfig{
		Symbol:         symbol,
		InitialCapital: capital,
		CommissionRate: o.CommissionRate,
		SlippageCoeff:  o.SlippageCoeff,
		ExposureCap:    o.ExposureCap,
		Rules:          o.RulesFor(symbol),
		ProfilerKind:   o.ProfilerKind,
		ProfilerParams: riskParams,
		ATRKey:         o.ATRKey,
		Strategy:       strat,
		Logger:         o.Logger,
	})
	if err != nil {
		return nil, err
	}

	rep := eng.Run(ctx, bars)
	if rep.Result.Status != domain.StatusFinished {
		return nil, nil
	}
	return rep.Trades, nil
}

// sentinel fills the trial with the worst possible score per direction.
func (o *Objective) sentinel(trial Trial) Trial {
	trial.Values = make([]float64, len(o.Metrics))
	for i, key := range o.Metrics {
		if metrics.DirectionOf(key) == metrics.Minimize {
			trial.Values[i] = sentinelScore
		} else {
			trial.Values[i] = -sentinelScore
		}
	}
	return trial
}
