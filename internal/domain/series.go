package domain

import (
	"encoding/json"
	"math"
)

// Series is one indicator or return series aligned to a date axis. Indices
// below Warmup hold NaN and are unavailable; kernels never extrapolate into
// the warm-up region.
type Series struct {
	Values []float64 `json:"values"`
	Warmup int       `json:"warmup"`
}

// NewSeries wraps values whose first warmup samples are unavailable.
func NewSeries(values []float64, warmup int) Series {
	if warmup < 0 {
		warmup = 0
	}
	if warmup > len(values) {
		warmup = len(values)
	}
	return Series{Values: values, Warmup: warmup}
}

// Len returns the series length including warm-up samples.
func (s Series) Len() int { return len(s.Values) }

// At returns the value at index i and whether it is available. Warm-up
// samples and NaN cells are unavailable.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s.Values) || i < s.Warmup {
		return math.NaN(), false
	}
	v := s.Values[i]
	if math.IsNaN(v) {
		return math.NaN(), false
	}
	return v, true
}

// Last returns the most recent available value, false when the series has
// none.
func (s Series) Last() (float64, bool) {
	for i := len(s.Values) - 1; i >= s.Warmup; i-- {
		if !math.IsNaN(s.Values[i]) {
			return s.Values[i], true
		}
	}
	return math.NaN(), false
}

type seriesJSON struct {
	Values []*float64 `json:"values"`
	Warmup int        `json:"warmup"`
}

// MarshalJSON encodes unavailable samples as null; JSON has no NaN.
func (s Series) MarshalJSON() ([]byte, error) {
	values := make([]*float64, len(s.Values))
	for i := range s.Values {
		if !math.IsNaN(s.Values[i]) {
			values[i] = &s.Values[i]
		}
	}
	return json.Marshal(seriesJSON{Values: values, Warmup: s.Warmup})
}

// UnmarshalJSON decodes null samples back to NaN.
func (s *Series) UnmarshalJSON(data []byte) error {
	var raw seriesJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	values := make([]float64, len(raw.Values))
	for i, v := range raw.Values {
		if v == nil {
			values[i] = math.NaN()
		} else {
			values[i] = *v
		}
	}
	*s = NewSeries(values, raw.Warmup)
	return nil
}
