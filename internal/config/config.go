// Package config loads YAML configuration with environment overrides for
// the backtest, walk-forward, and live monitor commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"quantbt/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration shared by all quantbt commands.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Alpaca    Alpaca          `yaml:"alpaca"`
	Logging   Logging         `yaml:"logging"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Risk      RiskConfig      `yaml:"risk"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Live      LiveConfig      `yaml:"live"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	ReportDir  string `yaml:"report_dir"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	StreamURL string `yaml:"stream_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig defines a simulation run: capital, cost model, instrument
// universe, and the strategy to drive it.
type BacktestConfig struct {
	InitialCapital float64                  `yaml:"initial_capital"`
	CommissionRate float64                  `yaml:"commission_rate"`
	SlippageCoeff  float64                  `yaml:"slippage_coeff"`
	Start          string                   `yaml:"start"`
	End            string                   `yaml:"end"`
	Symbols        []string                 `yaml:"symbols"`
	Rules          []domain.InstrumentRules `yaml:"rules"`
	Strategy       StrategyConfig           `yaml:"strategy"`
}

// StrategyConfig names a registered strategy and carries its parameter
// overrides. Parameters prefixed rm_ are routed to the risk profile.
type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// RiskConfig defines the risk profile applied to every entry signal.
type RiskConfig struct {
	Profile       string  `yaml:"profile"` // "fixed" or "atr"
	RiskPct       float64 `yaml:"risk_pct"`
	TPRatio       float64 `yaml:"tp_ratio"`
	ATRMultiplier float64 `yaml:"atr_multiplier"`
	ATRKey        string  `yaml:"atr_key"`
	ExposureCap   float64 `yaml:"exposure_cap"`
}

// OptimizerConfig defines the walk-forward layout and search budget.
type OptimizerConfig struct {
	TotalChunks int      `yaml:"total_chunks"`
	TrainChunks int      `yaml:"train_chunks"`
	TestChunks  int      `yaml:"test_chunks"`
	Trials      int      `yaml:"trials"`
	Seed        int64    `yaml:"seed"`
	Workers     int      `yaml:"workers"`
	Metrics     []string `yaml:"metrics"`
}

// LiveConfig defines the live signal monitor: which symbols to supervise and
// how much history each strategy instance keeps.
type LiveConfig struct {
	Symbols       []string       `yaml:"symbols"`
	Strategy      StrategyConfig `yaml:"strategy"`
	BufferSize    int            `yaml:"buffer_size"`
	WarmupBars    int            `yaml:"warmup_bars"`
	PollInterval  Duration       `yaml:"poll_interval"`
	MaxReconnects int            `yaml:"max_reconnects"`
}

// Duration decodes YAML strings like "30s" or "5m" via time.ParseDuration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, then fills defaults
// and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Backtest.InitialCapital == 0 {
		c.Backtest.InitialCapital = 100_000
	}
	if c.Risk.Profile == "" {
		c.Risk.Profile = "fixed"
	}
	if c.Risk.RiskPct == 0 {
		c.Risk.RiskPct = 1
	}
	if c.Risk.TPRatio == 0 {
		c.Risk.TPRatio = 2
	}
	if c.Risk.ATRKey == "" {
		c.Risk.ATRKey = "atr"
	}
	if c.Risk.ExposureCap == 0 {
		c.Risk.ExposureCap = 1
	}
	if c.Optimizer.Trials == 0 {
		c.Optimizer.Trials = 50
	}
	if c.Optimizer.Workers == 0 {
		c.Optimizer.Workers = 4
	}
	if len(c.Optimizer.Metrics) == 0 {
		c.Optimizer.Metrics = []string{"calmar_ratio"}
	}
	if c.Live.BufferSize == 0 {
		c.Live.BufferSize = 500
	}
	if c.Live.PollInterval == 0 {
		c.Live.PollInterval = Duration(30 * time.Second)
	}
	if c.Live.MaxReconnects == 0 {
		c.Live.MaxReconnects = 10
	}
}

// Validate rejects configurations the engine cannot run with. Walk-forward
// layout arithmetic is checked by the optimizer itself; only static shape
// errors are caught here.
func (c *Config) Validate() error {
	if c.Backtest.InitialCapital < 0 {
		return fmt.Errorf("backtest.initial_capital must not be negative, got %v", c.Backtest.InitialCapital)
	}
	if c.Backtest.CommissionRate < 0 {
		return fmt.Errorf("backtest.commission_rate must not be negative, got %v", c.Backtest.CommissionRate)
	}
	if c.Risk.Profile != "fixed" && c.Risk.Profile != "atr" {
		return fmt.Errorf("risk.profile must be \"fixed\" or \"atr\", got %q", c.Risk.Profile)
	}
	if c.Risk.ExposureCap <= 0 || c.Risk.ExposureCap > 1 {
		return fmt.Errorf("risk.exposure_cap must be in (0, 1], got %v", c.Risk.ExposureCap)
	}
	return nil
}

// RulesFor returns the instrument rules configured for symbol, or the
// whole-share defaults when none are configured.
func (c *BacktestConfig) RulesFor(symbol string) domain.InstrumentRules {
	for _, r := range c.Rules {
		if r.Symbol == symbol {
			return r
		}
	}
	return domain.DefaultRules(symbol)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("REPORT_DIR"); v != "" {
		cfg.Storage.ReportDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("ALPACA_STREAM_URL"); v != "" {
		cfg.Alpaca.StreamURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("WFO_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Optimizer.Seed = seed
		}
	}

	// Standard Alpaca env vars (highest priority, canonical SDK names).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
