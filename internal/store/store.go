// Package store persists and retrieves domain objects: historical bars in
// Parquet files, and trade logs, optimization results, and live signals in
// SQLite.
package store

import (
	"context"
	"time"

	"quantbt/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end],
	// sorted by timestamp.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// SignalStore persists signals produced by the live monitor.
type SignalStore interface {
	// SaveSignal appends a signal with its producing strategy.
	SaveSignal(ctx context.Context, strategy string, sig domain.SignalEvent) error

	// ListSignals returns the most recent signals for a strategy, newest
	// first, up to limit.
	ListSignals(ctx context.Context, strategy string, limit int) ([]SignalRecord, error)
}

// SignalRecord is a persisted live signal.
type SignalRecord struct {
	ID        int64
	Strategy  string
	Symbol    string
	Timestamp time.Time
	Direction domain.Direction
	Reason    domain.TriggerReason
}
