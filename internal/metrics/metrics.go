// Package metrics computes portfolio performance statistics from closed
// trade history. The same calculations serve report generation and the
// walk-forward optimizer's objective functions.
package metrics

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"quantbt/internal/domain"
)

// Direction tells the optimizer which way a metric improves.
type Direction string

const (
	Maximize Direction = "maximize"
	Minimize Direction = "minimize"
)

// DefaultAnnualization is the trading-day count used for equities. Crypto
// runs pass 365 instead.
const DefaultAnnualization = 252

// perfectScore stands in for ratios whose denominator risk never occurred,
// e.g. Sortino with no losing period.
const perfectScore = 9999.0

// Definition describes one metric in the registry.
type Definition struct {
	Name        string
	Direction   Direction
	Description string
}

// Registry is the menu of selectable metrics. Keys double as the metric
// identifiers accepted in optimizer configuration.
var Registry = map[string]Definition{
	"calmar_ratio": {
		Name:        "Calmar Ratio",
		Direction:   Maximize,
		Description: "annualized return over max drawdown",
	},
	"sharpe_ratio": {
		Name:        "Sharpe Ratio",
		Direction:   Maximize,
		Description: "mean return over volatility, annualized",
	},
	"sortino_ratio": {
		Name:        "Sortino Ratio",
		Direction:   Maximize,
		Description: "mean return over downside volatility, annualized",
	},
	"profit_factor": {
		Name:        "Profit Factor",
		Direction:   Maximize,
		Description: "gross profit over gross loss",
	},
	"pnl_to_drawdown": {
		Name:        "PnL / Max Drawdown",
		Direction:   Maximize,
		Description: "total pnl over max drawdown in money terms",
	},
	"sqn": {
		Name:        "SQN",
		Direction:   Maximize,
		Description: "Van Tharp system quality number",
	},
	"pnl": {
		Name:        "Total PnL",
		Direction:   Maximize,
		Description: "absolute net profit",
	},
	"win_rate": {
		Name:        "Win Rate",
		Direction:   Maximize,
		Description: "fraction of profitable trades",
	},
	"max_drawdown": {
		Name:        "Max Drawdown",
		Direction:   Minimize,
		Description: "worst peak-to-trough equity decline",
	},
	"custom_metric": {
		Name:        "Custom (PF * WR / MDD)",
		Direction:   Maximize,
		Description: "profit factor times win rate over max drawdown",
	},
}

// Known reports whether key names a registered metric.
func Known(key string) bool {
	_, ok := Registry[key]
	return ok
}

// DirectionOf returns the optimization direction for key, defaulting to
// Maximize for unregistered keys.
func DirectionOf(key string) Direction {
	if def, ok := Registry[key]; ok {
		return def.Direction
	}
	return Maximize
}

// Calculator precomputes the equity curve, returns series, and drawdown
// once, then answers individual metric queries cheaply. Fewer than two
// trades makes the calculator invalid; every query then yields the worst
// value for the metric's direction.
type Calculator struct {
	valid          bool
	initialCapital float64
	annualization  float64

	pnls        []float64
	returns     []float64
	totalPnL    float64
	grossProfit float64
	grossLoss   float64
	maxDrawdown float64
	numDays     float64
	wins        int
}

// NewCalculator builds a calculator over trades in their given order.
// Callers merging multiple instruments must sort by exit time first.
func NewCalculator(trades []domain.ClosedTrade, initialCapital float64, annualization int) *Calculator {
	c := &Calculator{initialCapital: initialCapital, annualization: float64(annualization)}
	if len(trades) < 2 || initialCapital <= 0 {
		return c
	}
	c.valid = true

	equity := make([]float64, len(trades))
	c.pnls = make([]float64, len(trades))
	cum := 0.0
	for i, tr := range trades {
		cum += tr.NetPnL
		c.pnls[i] = tr.NetPnL
		equity[i] = initialCapital + cum

		if tr.NetPnL > 0 {
			c.wins++
			c.grossProfit += tr.NetPnL
		} else if tr.NetPnL < 0 {
			c.grossLoss += -tr.NetPnL
		}
	}
	c.totalPnL = cum

	c.returns = make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev == 0 {
			c.returns = append(c.returns, 0)
			continue
		}
		c.returns = append(c.returns, (equity[i]-prev)/prev)
	}

	highWater := equity[0]
	for _, eq := range equity {
		if eq > highWater {
			highWater = eq
		}
		if highWater > 0 {
			dd := (highWater - eq) / highWater
			if dd > c.maxDrawdown {
				c.maxDrawdown = dd
			}
		}
	}

	days := trades[len(trades)-1].ExitTime.Sub(trades[0].EntryTime).Hours() / 24
	if days > 1 {
		c.numDays = math.Floor(days)
	} else {
		c.numDays = 1
	}
	return c
}

// Valid reports whether enough trade history was supplied.
func (c *Calculator) Valid() bool { return c.valid }

// WorstValue is the fallback score for an invalid calculator.
func WorstValue(key string) float64 {
	if DirectionOf(key) == Minimize {
		return 1e9
	}
	return -1.0
}

// Value computes a single metric by registry key.
func (c *Calculator) Value(key string) (float64, error) {
	if !Known(key) {
		return 0, fmt.Errorf("metrics: unknown metric %q", key)
	}
	if !c.valid {
		return WorstValue(key), nil
	}

	switch key {
	case "sharpe_ratio":
		return c.sharpe(), nil
	case "sortino_ratio":
		return c.sortino(), nil
	case "calmar_ratio":
		return c.calmar(), nil
	case "profit_factor":
		return c.profitFactor(), nil
	case "pnl_to_drawdown":
		return c.pnlToDrawdown(), nil
	case "sqn":
		return c.sqn(), nil
	case "pnl":
		return c.totalPnL, nil
	case "win_rate":
		return c.winRate(), nil
	case "max_drawdown":
		return c.maxDrawdown, nil
	case "custom_metric":
		return c.custom(), nil
	}
	return 0, fmt.Errorf("metrics: unknown metric %q", key)
}

// Summary carries the full report-ready metric set.
type Summary struct {
	Values      map[string]float64
	PnLAbs      float64
	PnLPct      float64
	TotalTrades int
}

// All computes every registered metric plus the report extras. Invalid
// history yields a zeroed summary rather than sentinel values.
func (c *Calculator) All() Summary {
	values := make(map[string]float64, len(Registry))
	if !c.valid {
		for key := range Registry {
			values[key] = 0
		}
		return Summary{Values: values}
	}

	for key := range Registry {
		v, _ := c.Value(key)
		values[key] = v
	}
	return Summary{
		Values:      values,
		PnLAbs:      c.totalPnL,
		PnLPct:      c.totalPnL / c.initialCapital * 100,
		TotalTrades: len(c.pnls),
	}
}

func (c *Calculator) sharpe() float64 {
	mean, _ := stats.Mean(c.returns)
	sd, err := stats.StandardDeviationSample(c.returns)
	if err != nil || sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return mean / sd * math.Sqrt(c.annualization)
}

func (c *Calculator) sortino() float64 {
	mean, _ := stats.Mean(c.returns)

	var downside []float64
	for _, r := range c.returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		if mean > 0 {
			return perfectScore
		}
		return 0
	}
	sd, err := stats.StandardDeviationSample(downside)
	if err != nil || sd == 0 || math.IsNaN(sd) {
		if mean > 0 {
			return perfectScore
		}
		return 0
	}
	return mean / sd * math.Sqrt(c.annualization)
}

func (c *Calculator) calmar() float64 {
	totalReturn := c.totalPnL / c.initialCapital
	annualized := math.Pow(1+totalReturn, 365.0/c.numDays) - 1

	if c.maxDrawdown == 0 {
		if annualized > 0 {
			return perfectScore
		}
		return 0
	}
	return annualized / c.maxDrawdown
}

func (c *Calculator) profitFactor() float64 {
	if c.grossLoss == 0 {
		if c.grossProfit > 0 {
			return perfectScore
		}
		return 1
	}
	return c.grossProfit / c.grossLoss
}

func (c *Calculator) pnlToDrawdown() float64 {
	if c.maxDrawdown == 0 {
		if c.totalPnL > 0 {
			return perfectScore
		}
		return 0
	}
	return c.totalPnL / (c.maxDrawdown * c.initialCapital)
}

func (c *Calculator) sqn() float64 {
	mean, _ := stats.Mean(c.pnls)
	sd, err := stats.StandardDeviationSample(c.pnls)
	if err != nil || sd == 0 {
		return 0
	}
	return math.Sqrt(float64(len(c.pnls))) * mean / sd
}

func (c *Calculator) winRate() float64 {
	return float64(c.wins) / float64(len(c.pnls))
}

// custom balances profitability, accuracy, and risk: profit factor capped
// at 10 so it cannot dominate, times win rate, over max drawdown.
func (c *Calculator) custom() float64 {
	pf := c.profitFactor()
	wr := c.winRate()

	if c.maxDrawdown == 0 {
		if pf > 1 && wr > 0 {
			return perfectScore
		}
		return 0
	}
	return math.Min(pf, 10) * wr / c.maxDrawdown
}
