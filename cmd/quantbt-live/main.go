// Runs the live signal monitor: streams minute bars from Alpaca, evaluates
// the configured strategy per symbol, and fans signals out to the log and the
// SQLite signal table. No orders are placed in this mode.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"quantbt/internal/config"
	"quantbt/internal/live"
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

	logger := util.NewLogger(cfg.Logging.Level)
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

	feed := live.NewAlpacaFeed(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.StreamURL,
		cfg.Live.Symbols,
		cfg.Live.MaxReconnects,
		logger,
	)
	handlers := []live.SignalHandler{
		live.NewLogHandler(logger),
		live.NewStoreHandler(db),
	}

	monitor, err := live.NewMonitor(cfg.Live, registry, bars, feed, handlers,
		util.NewTradingCalendar(), logger)
	if err != nil {
		log.Fatalf("assembling monitor: %v", err)
	}

	if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("monitor stopped: %v", err)
	}
	logger.Info("monitor shut down")
}
