// Package live runs the signal monitor: a streaming bar feed fills a shared
// rolling buffer, and a supervisor keeps one evaluation task per instrument
// that replays the buffer through a strategy and fans out any signal it
// produces. No portfolio or execution runs in this mode.
package live

import (
	"sync"

	"quantbt/internal/domain"
)

// Buffer is a mutex-guarded rolling window of bars per symbol. Appends come
// from the stream consumer; strategy tasks only ever see copies, so the lock
// is held for slice bookkeeping and never across an evaluation.
type Buffer struct {
	mu      sync.RWMutex
	maxBars int
	bars    map[string][]domain.Bar
}

// NewBuffer creates a buffer holding at most maxBars bars per symbol.
func NewBuffer(maxBars int) *Buffer {
	return &Buffer{
		maxBars: maxBars,
		bars:    make(map[string][]domain.Bar),
	}
}

// Append adds a bar to its symbol's window, evicting the oldest bar once the
// window is full. A bar carrying the same timestamp as the latest entry
// replaces it, so a corrected bar from the feed wins over the original.
func (b *Buffer) Append(bar domain.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()

	window := b.bars[bar.Symbol]
	if n := len(window); n > 0 && window[n-1].Timestamp.Equal(bar.Timestamp) {
		window[n-1] = bar
		return
	}
	window = append(window, bar)
	if len(window) > b.maxBars {
		// Reallocate instead of reslicing so the evicted prefix can be
		// collected.
		trimmed := make([]domain.Bar, b.maxBars)
		copy(trimmed, window[len(window)-b.maxBars:])
		window = trimmed
	}
	b.bars[bar.Symbol] = window
}

// Preload seeds a symbol's window with historical bars, keeping at most the
// newest maxBars of them. It replaces whatever the window already holds.
func (b *Buffer) Preload(symbol string, bars []domain.Bar) {
	if len(bars) > b.maxBars {
		bars = bars[len(bars)-b.maxBars:]
	}
	window := make([]domain.Bar, len(bars))
	copy(window, bars)

	b.mu.Lock()
	b.bars[symbol] = window
	b.mu.Unlock()
}

// Snapshot returns a copy of the symbol's current window, oldest first.
func (b *Buffer) Snapshot(symbol string) []domain.Bar {
	b.mu.RLock()
	defer b.mu.RUnlock()

	window := b.bars[symbol]
	out := make([]domain.Bar, len(window))
	copy(out, window)
	return out
}

// Len returns the number of bars held for symbol.
func (b *Buffer) Len(symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bars[symbol])
}
