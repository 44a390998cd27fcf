package optimize

import (
	"math"
	"math/rand"
	"strings"

	"quantbt/internal/strategy"
)

// riskParamPrefix separates risk parameters from strategy parameters inside
// a single flat trial parameter map.
const riskParamPrefix = "rm_"

// Space is the flat search space of one optimization: strategy parameters
// under their own names plus risk parameters under the rm_ prefix.
type Space struct {
	defs []strategy.ParamDef
}

// NewSpace builds the search space from the strategy's parameter defs and
// the risk profiler's defs (prefixed with rm_).
func NewSpace(strategyDefs, riskDefs []strategy.ParamDef) *Space {
	defs := make([]strategy.ParamDef, 0, len(strategyDefs)+len(riskDefs))
	defs = append(defs, strategyDefs...)
	for _, d := range riskDefs {
		d.Name = riskParamPrefix + d.Name
		defs = append(defs, d)
	}
	return &Space{defs: defs}
}

// Sample draws one full parameter assignment. Optimizable dimensions are
// sampled uniformly on their low/high grid at step resolution; the rest get
// their defaults. The caller owns rng, which keeps runs reproducible from a
// seed.
func (s *Space) Sample(rng *rand.Rand) map[string]float64 {
	params := make(map[string]float64, len(s.defs))
	for _, d := range s.defs {
		if !d.Optimizable {
			params[d.Name] = d.Default
			continue
		}
		params[d.Name] = sampleGrid(rng, d)
	}
	return params
}

func sampleGrid(rng *rand.Rand, d strategy.ParamDef) float64 {
	step := d.Step
	if step <= 0 {
		if d.Type == strategy.ParamInt {
			step = 1
		} else {
			// Continuous float dimension.
			return d.Low + rng.Float64()*(d.High-d.Low)
		}
	}

	points := int(math.Floor((d.High-d.Low)/step)) + 1
	if points < 1 {
		points = 1
	}
	v := d.Low + float64(rng.Intn(points))*step
	if d.Type == strategy.ParamInt {
		v = math.Round(v)
	}
	return v
}

// SplitParams separates a flat trial parameter map back into strategy and
// risk parameter maps, stripping the rm_ prefix from the latter.
func SplitParams(params map[string]float64) (strategyParams, riskParams map[string]float64) {
	strategyParams = make(map[string]float64)
	riskParams = make(map[string]float64)
	for k, v := range params {
		if strings.HasPrefix(k, riskParamPrefix) {
			riskParams[strings.TrimPrefix(k, riskParamPrefix)] = v
			continue
		}
		strategyParams[k] = v
	}
	return strategyParams, riskParams
}
