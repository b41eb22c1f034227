// Package signals evaluates rule sets over indicator series and blends the
// rule outputs into weighted entry and exit composites.
package signals

import (
	"fmt"

	"github.com/quantleap/quantd/internal/domain"
)

// Operators accepted by signal rules.
const (
	OpGT         = "gt"
	OpLT         = "lt"
	OpGTE        = "gte"
	OpLTE        = "lte"
	OpCrossover  = "crossover"
	OpCrossunder = "crossunder"
)

// Rule compares one indicator series against a threshold, or against a
// second series when Reference is set (price above a moving average, fast
// MA crossing a slow MA). Weight scales the rule's contribution to the
// composite; Lookback shifts evaluation that many bars into the past
// (1 = current bar, the default).
type Rule struct {
	Indicator string  `json:"indicator"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
	Reference string  `json:"reference,omitempty"`
	Weight    float64 `json:"weight"`
	Lookback  int     `json:"lookback,omitempty"`
}

// Validate checks the rule fields. A zero Lookback is accepted and treated
// as 1 during evaluation.
func (r Rule) Validate() error {
	if r.Indicator == "" {
		return fmt.Errorf("%w: rule has no indicator", domain.ErrValidation)
	}
	switch r.Operator {
	case OpGT, OpLT, OpGTE, OpLTE, OpCrossover, OpCrossunder:
	default:
		return fmt.Errorf("%w: unknown operator %q", domain.ErrValidation, r.Operator)
	}
	if r.Weight < 0 {
		return fmt.Errorf("%w: rule %s has negative weight %.4f", domain.ErrValidation, r.Indicator, r.Weight)
	}
	if r.Lookback < 0 {
		return fmt.Errorf("%w: rule %s has negative lookback %d", domain.ErrValidation, r.Indicator, r.Lookback)
	}
	return nil
}

// ValidateRules checks every rule in a set.
func ValidateRules(rules []Rule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
