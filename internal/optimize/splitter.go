// Package optimize implements walk-forward optimization: chronological
// train/test windowing, random parameter search, and out-of-sample
// validation of the selected parameters.
package optimize

import (
	"fmt"

	"quantbt/internal/domain"
)

// SplitChunks divides bars into n contiguous chunks of near-equal length.
// When n does not divide evenly, the trailing chunks carry the extra bar, so
// chunk sizes never differ by more than one. Chronological order is kept;
// walk-forward never shuffles.
func SplitChunks(bars []domain.Bar, n int) [][]domain.Bar {
	if len(bars) == 0 || n <= 0 {
		return nil
	}
	if n > len(bars) {
		n = len(bars)
	}

	chunks := make([][]domain.Bar, 0, n)
	base := len(bars) / n
	extra := len(bars) % n

	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i >= n-extra {
			size++
		}
		chunks = append(chunks, bars[start:start+size])
		start += size
	}
	return chunks
}

// Window is one walk-forward step: a training slice followed immediately by
// the out-of-sample test slice.
type Window struct {
	Step  int
	Train []domain.Bar
	Test  []domain.Bar
}

// Windows generates the sliding train/test windows over pre-split chunks,
// advancing one chunk per step:
//
//	chunks [A B C D E], train 2, test 1
//	step 1: train [A B], test [C]
//	step 2: train [B C], test [D]
//	step 3: train [C D], test [E]
//
// It fails with ErrInsufficientWindow when not even one window fits.
func Windows(chunks [][]domain.Bar, trainChunks, testChunks int) ([]Window, error) {
	numSteps := len(chunks) - trainChunks - testChunks + 1
	if trainChunks <= 0 || testChunks <= 0 || numSteps <= 0 {
		return nil, fmt.Errorf("%w: have %d chunks, need at least %d",
			domain.ErrInsufficientWindow, len(chunks), trainChunks+testChunks)
	}

	windows := make([]Window, 0, numSteps)
	for i := 0; i < numSteps; i++ {
		windows = append(windows, Window{
			Step:  i + 1,
			Train: concat(chunks[i : i+trainChunks]),
			Test:  concat(chunks[i+trainChunks : i+trainChunks+testChunks]),
		})
	}
	return windows, nil
}

func concat(chunks [][]domain.Bar) []domain.Bar {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]domain.Bar, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
