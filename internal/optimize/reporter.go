package optimize

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
)

// Reporter renders walk-forward results: a per-step console table, a step
// summary CSV, and the merged out-of-sample trade log.
type Reporter struct {
	reportDir    string
	strategyName string
	logger       *slog.Logger
}

// NewReporter creates a reporter writing files under reportDir.
func NewReporter(reportDir, strategyName string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{reportDir: reportDir, strategyName: strategyName, logger: logger}
}

// WriteSummaryTable renders the per-step overview plus the stitched
// out-of-sample metrics to w.
func (r *Reporter) WriteSummaryTable(w io.Writer, res *Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Step", "Status", "Best Trial", "IS Calmar", "IS PnL", "OOS Trades", "Params"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, step := range res.Steps {
		if step.Status != StepSuccess {
			table.Append([]string{
				fmt.Sprintf("%d", step.Step), step.Status, "-", "-", "-", "0", "-",
			})
			continue
		}
		table.Append([]string{
			fmt.Sprintf("%d", step.Step),
			step.Status,
			fmt.Sprintf("%d", step.BestTrial),
			fmt.Sprintf("%.2f", step.TrainMetrics["calmar_ratio"]),
			fmt.Sprintf("%.2f", step.TrainMetrics["pnl"]),
			fmt.Sprintf("%d", len(step.OOSTrades)),
			formatParams(step.Params),
		})
	}
	table.Render()

	fmt.Fprintf(w, "\nOut-of-sample: %d trades, pnl %.2f (%.2f%%)\n",
		res.Summary.TotalTrades, res.Summary.PnLAbs, res.Summary.PnLPct)
	for _, key := range []string{"calmar_ratio", "sharpe_ratio", "profit_factor", "max_drawdown", "win_rate"} {
		fmt.Fprintf(w, "  %-16s %.4f\n", key, res.Summary.Values[key])
	}
}

// stepRecord is the CSV row shape for one WFO step.
type stepRecord struct {
	Step        int     `csv:"step"`
	Status      string  `csv:"status"`
	BestTrial   int     `csv:"best_trial"`
	Params      string  `csv:"params"`
	ISCalmar    float64 `csv:"is_calmar_ratio"`
	ISSharpe    float64 `csv:"is_sharpe_ratio"`
	ISPnL       float64 `csv:"is_pnl"`
	ISDrawdown  float64 `csv:"is_max_drawdown"`
	ISWinRate   float64 `csv:"is_win_rate"`
	OOSTradeCnt int     `csv:"oos_trades"`
}

// tradeRecord is the CSV row shape for one closed trade.
type tradeRecord struct {
	ID         string  `csv:"id"`
	Symbol     string  `csv:"symbol"`
	Direction  string  `csv:"direction"`
	Qty        float64 `csv:"qty"`
	EntryTime  string  `csv:"entry_timestamp_utc"`
	ExitTime   string  `csv:"exit_timestamp_utc"`
	EntryPrice float64 `csv:"entry_price"`
	ExitPrice  float64 `csv:"exit_price"`
	GrossPnL   float64 `csv:"gross_pnl"`
	NetPnL     float64 `csv:"net_pnl"`
	Commission float64 `csv:"commission"`
	ExitReason string  `csv:"exit_reason"`
}

// Export writes the steps summary and OOS trade log CSVs and returns the
// shared base path of the generated files.
func (r *Reporter) Export(res *Result) (string, error) {
	if err := os.MkdirAll(r.reportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	base := filepath.Join(r.reportDir,
		fmt.Sprintf("%s_wfo_%s", time.Now().Format("20060102_150405"), r.strategyName))

	steps := make([]stepRecord, 0, len(res.Steps))
	for _, s := range res.Steps {
		steps = append(steps, stepRecord{
			Step:        s.Step,
			Status:      s.Status,
			BestTrial:   s.BestTrial,
			Params:      formatParams(s.Params),
			ISCalmar:    s.TrainMetrics["calmar_ratio"],
			ISSharpe:    s.TrainMetrics["sharpe_ratio"],
			ISPnL:       s.TrainMetrics["pnl"],
			ISDrawdown:  s.TrainMetrics["max_drawdown"],
			ISWinRate:   s.TrainMetrics["win_rate"],
			OOSTradeCnt: len(s.OOSTrades),
		})
	}
	if err := writeCSV(base+"_steps_summary.csv", &steps); err != nil {
		return "", err
	}

	trades := make([]tradeRecord, 0, len(res.OOSTrades))
	for _, tr := range res.OOSTrades {
		trades = append(trades, tradeRecord{
			ID:         tr.ID,
			Symbol:     tr.Symbol,
			Direction:  string(tr.Direction),
			Qty:        tr.Qty,
			EntryTime:  tr.EntryTime.UTC().Format(time.RFC3339),
			ExitTime:   tr.ExitTime.UTC().Format(time.RFC3339),
			EntryPrice: tr.EntryPrice,
			ExitPrice:  tr.ExitPrice,
			GrossPnL:   tr.GrossPnL,
			NetPnL:     tr.NetPnL,
			Commission: tr.Commission,
			ExitReason: string(tr.ExitReason),
		})
	}
	if err := writeCSV(base+"_oos_trades.csv", &trades); err != nil {
		return "", err
	}

	r.logger.Info("reports written", "base", base)
	return base, nil
}

func writeCSV(path string, records interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(records, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// formatParams renders a parameter map as a stable k=v list.
func formatParams(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, params[k]))
	}
	return strings.Join(parts, " ")
}
