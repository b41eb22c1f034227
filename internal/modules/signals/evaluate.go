package signals

import (
	"math"

	"github.com/quantleap/quantd/internal/domain"
)

func valueAt(series map[string]domain.Series, name string, i int) (float64, bool) {
	s, ok := series[name]
	if !ok {
		return math.NaN(), false
	}
	return s.At(i)
}

// EvaluateRule returns 1 when the rule fires at index i, 0 otherwise.
// Unavailable samples never fire; crossings additionally require the
// previous sample to be available.
func EvaluateRule(series map[string]domain.Series, rule Rule, i int) float64 {
	lookback := rule.Lookback
	if lookback < 1 {
		lookback = 1
	}
	j := i - (lookback - 1)
	if j < 0 {
		return 0
	}

	v, ok := valueAt(series, rule.Indicator, j)
	if !ok {
		return 0
	}

	// The comparison target is the constant threshold, or the reference
	// series sampled at the same index when one is named.
	threshold := rule.Threshold
	if rule.Reference != "" {
		ref, ok := valueAt(series, rule.Reference, j)
		if !ok {
			return 0
		}
		threshold = ref
	}

	switch rule.Operator {
	case OpGT:
		if v > threshold {
			return 1
		}
	case OpLT:
		if v < threshold {
			return 1
		}
	case OpGTE:
		if v >= threshold {
			return 1
		}
	case OpLTE:
		if v <= threshold {
			return 1
		}
	case OpCrossover, OpCrossunder:
		prev, ok := valueAt(series, rule.Indicator, j-1)
		if !ok {
			return 0
		}
		prevThreshold := rule.Threshold
		if rule.Reference != "" {
			ref, ok := valueAt(series, rule.Reference, j-1)
			if !ok {
				return 0
			}
			prevThreshold = ref
		}
		if rule.Operator == OpCrossover && prev <= prevThreshold && threshold < v {
			return 1
		}
		if rule.Operator == OpCrossunder && prev >= prevThreshold && threshold > v {
			return 1
		}
	}
	return 0
}

// Composite blends rule outputs at index i into a weighted score in [0,1].
// Zero total weight yields 0.
func Composite(series map[string]domain.Series, rules []Rule, i int) float64 {
	var weighted, total float64
	for _, rule := range rules {
		total += rule.Weight
		weighted += rule.Weight * EvaluateRule(series, rule, i)
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// CompositeSeries evaluates the composite at every index of an n-sample
// axis.
func CompositeSeries(series map[string]domain.Series, rules []Rule, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = Composite(series, rules, i)
	}
	return out
}

// AxisLength returns the longest series length in a set, the evaluation
// axis for composites.
func AxisLength(series map[string]domain.Series) int {
	n := 0
	for _, s := range series {
		if s.Len() > n {
			n = s.Len()
		}
	}
	return n
}
