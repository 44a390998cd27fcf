// Runs a batch backtest over the configured instrument universe and prints
// the aggregate performance summary. Trades are appended to the SQLite trade
// log under a fresh run ID.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/engine"
	"quantbt/internal/metrics"
	"quantbt/internal/store"
	"quantbt/internal/strategy"
	"quantbt/internal/strategy/builtins"
	"quantbt/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/quantbt.yaml", "path to the configuration file")
	flag.Parse()

	_ = godotenv.Load()
	if p := os.Getenv("QUANTBT_CONFIG"); p != "" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Logs go to stderr so the summary on stdout stays clean.
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := strategy.NewRegistry()
	builtins.Register(registry)

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening sqlite store: %v", err)
	}
	defer db.Close()

	start, end := dateRange(cfg.Backtest)
	histories := make(map[string][]domain.Bar, len(cfg.Backtest.Symbols))
	for _, symbol := range cfg.Backtest.Symbols {
		history, err := bars.ReadBars(ctx, symbol, start, end)
		if errors.Is(err, domain.ErrDataUnavailable) {
			logger.Warn("no data for instrument, skipping", "symbol", symbol)
			continue
		}
		if err != nil {
			log.Fatalf("reading bars for %s: %v", symbol, err)
		}
		histories[symbol] = history
	}
	if len(histories) == 0 {
		log.Fatalf("no instrument has data in %s", cfg.Storage.DataDir)
	}

	runID := uuid.NewString()
	sink := db.TradeLog(runID, cfg.Backtest.Strategy.Name)
	perInstrument := cfg.Backtest.InitialCapital / float64(len(histories))

	symbols := make([]string, 0, len(histories))
	for symbol := range histories {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var allTrades []domain.ClosedTrade
	succeeded := 0
	for _, symbol := range symbols {
		strat, err := registry.Build(cfg.Backtest.Strategy.Name, cfg.Backtest.Strategy.Params)
		if err != nil {
			log.Fatalf("building strategy: %v", err)
		}

		eng, err := engine.New(engine.RunConfig{
			Symbol:         symbol,
			InitialCapital: perInstrument,
			CommissionRate: cfg.Backtest.CommissionRate,
			SlippageCoeff:  cfg.Backtest.SlippageCoeff,
			ExposureCap:    cfg.Risk.ExposureCap,
			Rules:          cfg.Backtest.RulesFor(symbol),
			ProfilerKind:   cfg.Risk.Profile,
			ProfilerParams: riskParams(cfg.Risk),
			ATRKey:         cfg.Risk.ATRKey,
			Strategy:       strat,
			TradeSink:      sink,
			Logger:         logger,
		})
		if err != nil {
			log.Fatalf("assembling engine: %v", err)
		}

		report := eng.Run(ctx, histories[symbol])
		if report.Result.Status == domain.StatusFailed {
			logger.Error("backtest failed",
				"symbol", symbol, "reason", report.Result.Message)
			continue
		}
		succeeded++
		allTrades = append(allTrades, report.Trades...)
		logger.Info("backtest finished",
			"symbol", symbol,
			"trades", len(report.Trades),
			"final_capital", report.FinalCapital)
	}
	if succeeded == 0 {
		log.Fatalf("every instrument failed")
	}

	sort.SliceStable(allTrades, func(i, j int) bool {
		return allTrades[i].ExitTime.Before(allTrades[j].ExitTime)
	})
	summary := metrics.NewCalculator(allTrades, cfg.Backtest.InitialCapital, metrics.DefaultAnnualization).All()

	fmt.Printf("run %s\n", runID)
	fmt.Printf("instruments: %d  trades: %d  pnl: %.2f (%.2f%%)\n",
		succeeded, summary.TotalTrades, summary.PnLAbs, summary.PnLPct)

	keys := make([]string, 0, len(summary.Values))
	for key := range summary.Values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("  %-18s %.4f\n", key, summary.Values[key])
	}
}

// riskParams maps the static risk configuration onto the profiler parameter
// space; zero-valued fields fall through to the profiler defaults.
func riskParams(r config.RiskConfig) map[string]float64 {
	params := map[string]float64{}
	if r.RiskPct > 0 {
		params[engine.ParamRiskPct] = r.RiskPct
	}
	if r.Profile == "atr" {
		if r.ATRMultiplier > 0 {
			params[engine.ParamATRMultiplierSL] = r.ATRMultiplier
			params[engine.ParamATRMultiplierTP] = 2 * r.ATRMultiplier
		}
	} else if r.TPRatio > 0 {
		params[engine.ParamTPRatio] = r.TPRatio
	}
	return params
}

// dateRange parses the configured backtest window, defaulting to all of the
// stored history.
func dateRange(b config.BacktestConfig) (time.Time, time.Time) {
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Now().UTC()
	if t, err := time.Parse("2006-01-02", b.Start); err == nil {
		start = t
	}
	if t, err := time.Parse("2006-01-02", b.End); err == nil {
		end = t
	}
	return start, end
}
