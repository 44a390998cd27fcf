package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quantbt/internal/domain"
	"quantbt/internal/optimize"
)

func sampleBar(day int, clos float64) domain.Bar {
	return domain.Bar{
		Symbol:    "AAPL",
		Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Open:      clos - 0.5,
		High:      clos + 1,
		Low:       clos - 1,
		Close:     clos,
		Volume:    50_000_000,
	}
}

func TestParquetWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{sampleBar(0, 185), sampleBar(1, 186)}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bars, want 2", len(got))
	}
	if got[0].Close != 185 || got[1].Close != 186 {
		t.Errorf("bars out of order or corrupted: %v", got)
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("bars must come back sorted by timestamp")
	}

	// Range filter excludes bars outside [start, end].
	got, err = ps.ReadBars(ctx, "AAPL",
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 || got[0].Close != 186 {
		t.Errorf("range filter returned %v", got)
	}
}

func TestParquetRewriteDeduplicates(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := ps.WriteBars(ctx, []domain.Bar{sampleBar(0, 185)}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// Same timestamp, corrected close. The rewrite must win without
	// duplicating the row.
	if err := ps.WriteBars(ctx, []domain.Bar{sampleBar(0, 184.5)}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got, err := ps.ReadBars(ctx, "AAPL",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d bars after rewrite, want 1", len(got))
	}
	if got[0].Close != 184.5 {
		t.Errorf("close = %v, want the rewritten 184.5", got[0].Close)
	}
}

func TestParquetMissingSymbol(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	_, err := ps.ReadBars(context.Background(), "NOPE",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestParquetListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	msft := sampleBar(0, 400)
	msft.Symbol = "MSFT"
	if err := ps.WriteBars(ctx, []domain.Bar{sampleBar(0, 185), msft}); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "MSFT" {
		t.Errorf("symbols = %v, want [AAPL MSFT]", symbols)
	}
}

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := NewSQLiteStore(filepath.Join(t.TempDir(), "quantbt.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteTradeLog(t *testing.T) {
	db := openTestDB(t)
	sink := db.TradeLog("run-1", "sma_cross")

	trade := domain.ClosedTrade{
		ID:         "t-1",
		Symbol:     "AAPL",
		Direction:  domain.DirectionLong,
		Qty:        100,
		EntryTime:  time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC),
		ExitTime:   time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC),
		EntryPrice: 185,
		ExitPrice:  190,
		GrossPnL:   500,
		NetPnL:     498,
		Commission: 2,
		ExitReason: domain.TriggerTakeProfit,
	}
	if err := sink.Append(trade); err != nil {
		t.Fatalf("Append: %v", err)
	}

	trades, err := db.ListTrades(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	got := trades[0]
	if got.ID != "t-1" || got.NetPnL != 498 || got.ExitReason != domain.TriggerTakeProfit {
		t.Errorf("trade round-trip mismatch: %+v", got)
	}
	if !got.ExitTime.Equal(trade.ExitTime) {
		t.Errorf("exit time = %v, want %v", got.ExitTime, trade.ExitTime)
	}

	other, err := db.ListTrades(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("ListTrades(run-2): %v", err)
	}
	if len(other) != 0 {
		t.Errorf("unrelated run returned %d trades", len(other))
	}
}

func TestSQLiteStepSink(t *testing.T) {
	db := openTestDB(t)
	sink := db.StepSink("run-7")

	err := sink.SaveStep(optimize.StepResult{
		Step:         1,
		Status:       optimize.StepSuccess,
		BestTrial:    3,
		Params:       map[string]float64{"fast_period": 12, "rm_risk_pct": 1.5},
		TrainMetrics: map[string]float64{"calmar_ratio": 2.4},
		OOSTrades:    []domain.ClosedTrade{{ID: "x"}},
	})
	if err != nil {
		t.Fatalf("SaveStep: %v", err)
	}

	steps, err := db.ListSteps(context.Background(), "run-7")
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(steps))
	}
	st := steps[0]
	if st.Status != optimize.StepSuccess || st.BestTrial != 3 || st.OOSTrades != 1 {
		t.Errorf("step mismatch: %+v", st)
	}
	if st.Params["rm_risk_pct"] != 1.5 {
		t.Errorf("params round-trip lost values: %v", st.Params)
	}
	if st.TrainMetrics["calmar_ratio"] != 2.4 {
		t.Errorf("metrics round-trip lost values: %v", st.TrainMetrics)
	}
}

func TestSQLiteSignals(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := db.SaveSignal(ctx, "sma_cross", domain.SignalEvent{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 3, 4, 14, 30+i, 0, 0, time.UTC),
			Direction: domain.DirectionLong,
			Reason:    domain.TriggerSignal,
		})
		if err != nil {
			t.Fatalf("SaveSignal: %v", err)
		}
	}

	signals, err := db.ListSignals(ctx, "sma_cross", 2)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("got %d signals, want limit 2", len(signals))
	}
	// Newest first.
	if !signals[0].Timestamp.After(signals[1].Timestamp) {
		t.Error("signals must come back newest first")
	}
	if signals[0].Direction != domain.DirectionLong || signals[0].Reason != domain.TriggerSignal {
		t.Errorf("signal round-trip mismatch: %+v", signals[0])
	}
}
