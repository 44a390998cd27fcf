package config

import (
	"os"
	"testing"
	"time"

	"quantbt/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	// Create a temporary YAML config file.
	yamlContent := []byte(`
storage:
  data_dir: "/tmp/quantbt/data"
  sqlite_path: "/tmp/quantbt/quantbt.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
  data_url: "https://data.alpaca.markets"
  stream_url: "wss://stream.data.alpaca.markets"
logging:
  level: "info"
  format: "json"
backtest:
  initial_capital: 250000
  commission_rate: 0.0005
  slippage_coeff: 0.1
  symbols: ["AAPL", "MSFT"]
  rules:
    - symbol: "AAPL"
      qty_step: 1
      lot_size: 100
      min_order_qty: 100
  strategy:
    name: "sma_cross"
    params:
      fast_period: 10
      slow_period: 30
risk:
  profile: "atr"
  risk_pct: 2
  tp_ratio: 1.5
  atr_multiplier: 3
  exposure_cap: 0.5
optimizer:
  total_chunks: 10
  train_chunks: 5
  test_chunks: 1
  trials: 25
  seed: 42
  metrics: ["calmar_ratio", "max_drawdown"]
live:
  symbols: ["AAPL"]
  warmup_bars: 50
  poll_interval: 15s
`)

	tmpFile, err := os.CreateTemp("", "quantbt-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	// Clear any environment overrides that might interfere.
	os.Unsetenv("ALPACA_API_KEY")
	os.Unsetenv("ALPACA_API_SECRET")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("WFO_SEED")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/quantbt/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/quantbt/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/quantbt/quantbt.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/quantbt/quantbt.db")
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.BaseURL != "https://paper-api.alpaca.markets" {
		t.Errorf("Alpaca.BaseURL = %q, want %q", cfg.Alpaca.BaseURL, "https://paper-api.alpaca.markets")
	}

	// -- Backtest --
	if cfg.Backtest.InitialCapital != 250000 {
		t.Errorf("Backtest.InitialCapital = %v, want %v", cfg.Backtest.InitialCapital, 250000.0)
	}
	if cfg.Backtest.Strategy.Name != "sma_cross" {
		t.Errorf("Backtest.Strategy.Name = %q, want %q", cfg.Backtest.Strategy.Name, "sma_cross")
	}
	if got := cfg.Backtest.Strategy.Params["slow_period"]; got != 30 {
		t.Errorf("Backtest.Strategy.Params[slow_period] = %v, want 30", got)
	}

	// -- Risk --
	if cfg.Risk.Profile != "atr" {
		t.Errorf("Risk.Profile = %q, want %q", cfg.Risk.Profile, "atr")
	}
	if cfg.Risk.ATRKey != "atr" {
		t.Errorf("Risk.ATRKey = %q, want default %q", cfg.Risk.ATRKey, "atr")
	}

	// -- Optimizer --
	if cfg.Optimizer.Trials != 25 {
		t.Errorf("Optimizer.Trials = %d, want 25", cfg.Optimizer.Trials)
	}
	if cfg.Optimizer.Workers != 4 {
		t.Errorf("Optimizer.Workers = %d, want default 4", cfg.Optimizer.Workers)
	}
	if len(cfg.Optimizer.Metrics) != 2 || cfg.Optimizer.Metrics[0] != "calmar_ratio" {
		t.Errorf("Optimizer.Metrics = %v, want [calmar_ratio max_drawdown]", cfg.Optimizer.Metrics)
	}

	// -- Live --
	if cfg.Live.PollInterval.Std() != 15*time.Second {
		t.Errorf("Live.PollInterval = %v, want 15s", cfg.Live.PollInterval)
	}
	if cfg.Live.BufferSize != 500 {
		t.Errorf("Live.BufferSize = %d, want default 500", cfg.Live.BufferSize)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	tmpFile, err := os.CreateTemp("", "quantbt-config-env-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	// Set environment overrides.
	os.Setenv("ALPACA_API_KEY", "env-key")
	os.Setenv("DATA_DIR", "/env/data")
	os.Setenv("WFO_SEED", "1234")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")
	defer os.Unsetenv("ALPACA_API_KEY")
	defer os.Unsetenv("DATA_DIR")
	defer os.Unsetenv("WFO_SEED")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Optimizer.Seed != 1234 {
		t.Errorf("Optimizer.Seed = %d, want 1234 (env override)", cfg.Optimizer.Seed)
	}
}

func TestValidateRejectsBadProfile(t *testing.T) {
	yamlContent := []byte(`
risk:
  profile: "kelly"
`)

	tmpFile, err := os.CreateTemp("", "quantbt-config-bad-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	if _, err := Load(tmpFile.Name()); err == nil {
		t.Fatal("Load() should reject unknown risk profile")
	}
}

func TestRulesFor(t *testing.T) {
	bt := BacktestConfig{
		Rules: []domain.InstrumentRules{
			{Symbol: "600519", QtyStep: 1, LotSize: 100, MinOrderQty: 100},
		},
	}

	cn := bt.RulesFor("600519")
	if cn.LotSize != 100 || cn.MinOrderQty != 100 {
		t.Errorf("RulesFor(600519) = %+v, want configured lot rules", cn)
	}

	us := bt.RulesFor("AAPL")
	if us.LotSize != 1 || us.QtyStep != 1 || us.MinOrderQty != 1 {
		t.Errorf("RulesFor(AAPL) = %+v, want whole-share defaults", us)
	}
}
