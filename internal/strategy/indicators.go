package strategy

import (
	"math"

	"github.com/montanaflynn/stats"

	"quantbt/internal/domain"
)

// CloneBars deep-copies a bar slice including indicator maps, so Precompute
// implementations can enrich without mutating shared input.
func CloneBars(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(bars))
	for i, b := range bars {
		out[i] = b
		if b.Indicators != nil {
			ind := make(map[string]float64, len(b.Indicators)+2)
			for k, v := range b.Indicators {
				ind[k] = v
			}
			out[i].Indicators = ind
		}
	}
	return out
}

func setIndicator(bar *domain.Bar, name string, value float64) {
	if bar.Indicators == nil {
		bar.Indicators = make(map[string]float64, 4)
	}
	bar.Indicators[name] = value
}

// EnrichSMA writes a simple moving average of closes over period into each
// bar under the given indicator name. Bars before the first full window get
// no value.
func EnrichSMA(bars []domain.Bar, period int, name string) {
	if period <= 0 || len(bars) < period {
		return
	}
	var sum float64
	for i := range bars {
		sum += bars[i].Close
		if i >= period {
			sum -= bars[i-period].Close
		}
		if i >= period-1 {
			setIndicator(&bars[i], name, sum/float64(period))
		}
	}
}

// EnrichRollingStdDev writes the sample standard deviation of closes over
// period into each bar under the given indicator name.
func EnrichRollingStdDev(bars []domain.Bar, period int, name string) {
	if period <= 1 || len(bars) < period {
		return
	}
	window := make([]float64, period)
	for i := period - 1; i < len(bars); i++ {
		for j := 0; j < period; j++ {
			window[j] = bars[i-period+1+j].Close
		}
		sd, err := stats.StandardDeviationSample(window)
		if err != nil || math.IsNaN(sd) {
			continue
		}
		setIndicator(&bars[i], name, sd)
	}
}

// EnrichATR writes a simple-average ATR over period into each bar under the
// given indicator name. The first bar's true range is high-low since there
// is no prior close.
func EnrichATR(bars []domain.Bar, period int, name string) {
	if period <= 0 || len(bars) < period {
		return
	}
	tr := make([]float64, len(bars))
	for i := range bars {
		hl := bars[i].High - bars[i].Low
		if i == 0 {
			tr[i] = hl
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(hl, math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
	}

	var sum float64
	for i := range tr {
		sum += tr[i]
		if i >= period {
			sum -= tr[i-period]
		}
		if i >= period-1 {
			setIndicator(&bars[i], name, sum/float64(period))
		}
	}
}
