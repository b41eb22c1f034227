package risk

// DrawdownResult describes the drawdown profile of an equity curve.
type DrawdownResult struct {
	Series          []float64 `json:"series"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	CurrentDrawdown float64   `json:"current_drawdown"`
	MaxDuration     int       `json:"max_duration"`
}

// ComputeDrawdown walks the running peak of an equity curve and returns the
// per-sample drawdown series (each value <= 0), the deepest drawdown, the
// final sample's drawdown and the longest strictly negative run in days.
func ComputeDrawdown(equity []float64) DrawdownResult {
	result := DrawdownResult{Series: make([]float64, len(equity))}
	if len(equity) == 0 {
		return result
	}

	peak := equity[0]
	run := 0
	for i, v := range equity {
		if v > peak {
			peak = v
		}
		dd := 0.0
		if peak > 0 {
			dd = (v - peak) / peak
		}
		result.Series[i] = dd

		if dd < result.MaxDrawdown {
			result.MaxDrawdown = dd
		}
		if dd < 0 {
			run++
			if run > result.MaxDuration {
				result.MaxDuration = run
			}
		} else {
			run = 0
		}
	}
	result.CurrentDrawdown = result.Series[len(result.Series)-1]
	return result
}
