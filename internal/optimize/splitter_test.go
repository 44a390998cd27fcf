package optimize

import (
	"errors"
	"testing"
	"time"

	"quantbt/internal/domain"
)

func makeBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	base := time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol:    "AAPL",
			Timestamp: base.AddDate(0, 0, i),
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100,
			Volume:    1e6,
		}
	}
	return bars
}

func TestSplitChunksEven(t *testing.T) {
	chunks := SplitChunks(makeBars(100), 10)
	if len(chunks) != 10 {
		t.Fatalf("got %d chunks, want 10", len(chunks))
	}
	for i, c := range chunks {
		if len(c) != 10 {
			t.Errorf("chunk %d has %d bars, want 10", i, len(c))
		}
	}
}

func TestSplitChunksRemainder(t *testing.T) {
	// 103 bars over 10 chunks: the last three chunks get the extra bar.
	chunks := SplitChunks(makeBars(103), 10)
	if len(chunks) != 10 {
		t.Fatalf("got %d chunks, want 10", len(chunks))
	}
	total := 0
	for i, c := range chunks {
		want := 10
		if i >= 7 {
			want = 11
		}
		if len(c) != want {
			t.Errorf("chunk %d has %d bars, want %d", i, len(c), want)
		}
		total += len(c)
	}
	if total != 103 {
		t.Errorf("chunks cover %d bars, want 103", total)
	}

	// Chronological order must survive the split.
	if !chunks[0][0].Timestamp.Before(chunks[9][0].Timestamp) {
		t.Error("chunks are out of order")
	}
}

func TestWindowsLayout(t *testing.T) {
	chunks := SplitChunks(makeBars(100), 10)
	windows, err := Windows(chunks, 5, 1)
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	// 10 - 5 - 1 + 1 = 5 steps.
	if len(windows) != 5 {
		t.Fatalf("got %d windows, want 5", len(windows))
	}

	first := windows[0]
	if first.Step != 1 || len(first.Train) != 50 || len(first.Test) != 10 {
		t.Errorf("window 1: step %d train %d test %d, want 1/50/10",
			first.Step, len(first.Train), len(first.Test))
	}
	// The test slice begins right where the train slice ends.
	if !first.Train[len(first.Train)-1].Timestamp.Before(first.Test[0].Timestamp) {
		t.Error("test window must follow the train window chronologically")
	}

	last := windows[4]
	if last.Step != 5 {
		t.Errorf("last step = %d, want 5", last.Step)
	}
	// Step 5 trains on chunks 5-9 and tests on chunk 10.
	if !last.Test[len(last.Test)-1].Timestamp.Equal(makeBars(100)[99].Timestamp) {
		t.Error("last test window should end at the final bar")
	}
}

func TestWindowsInsufficient(t *testing.T) {
	chunks := SplitChunks(makeBars(30), 3)
	_, err := Windows(chunks, 3, 1)
	if !errors.Is(err, domain.ErrInsufficientWindow) {
		t.Errorf("expected ErrInsufficientWindow, got %v", err)
	}
}
