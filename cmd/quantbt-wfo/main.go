// Runs the walk-forward optimization and writes the per-step summary table
// to stdout plus CSV reports to the configured report directory. Step results
// are persisted to SQLite under a fresh run ID.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/optimize"
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

	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Now().UTC()
	if t, err := time.Parse("2006-01-02", cfg.Backtest.Start); err == nil {
		start = t
	}
	if t, err := time.Parse("2006-01-02", cfg.Backtest.End); err == nil {
		end = t
	}

	data := make(map[string][]domain.Bar, len(cfg.Backtest.Symbols))
	for _, symbol := range cfg.Backtest.Symbols {
		history, err := bars.ReadBars(ctx, symbol, start, end)
		if errors.Is(err, domain.ErrDataUnavailable) {
			logger.Warn("no data for instrument, skipping", "symbol", symbol)
			continue
		}
		if err != nil {
			log.Fatalf("reading bars for %s: %v", symbol, err)
		}
		data[symbol] = history
	}

	runID := uuid.NewString()
	logger.Info("walk-forward run starting",
		"run_id", runID,
		"strategy", cfg.Backtest.Strategy.Name,
		"instruments", len(data),
		"trials", cfg.Optimizer.Trials,
		"seed", cfg.Optimizer.Seed)

	runner := optimize.NewRunner(cfg, registry, db.StepSink(runID), logger)
	result, err := runner.Run(ctx, data)
	if err != nil {
		log.Fatalf("optimization failed: %v", err)
	}

	reporter := optimize.NewReporter(cfg.Storage.ReportDir, cfg.Backtest.Strategy.Name, logger)
	reporter.WriteSummaryTable(os.Stdout, result)

	if path, err := reporter.Export(result); err != nil {
		logger.Warn("report export failed", "error", err)
	} else {
		logger.Info("reports written", "path", path, "run_id", runID)
	}
}
