package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantleap/quantd/internal/domain"
)

// Service coordinates the pricing kernels behind one request surface.
type Service struct {
	maxFanout int
	log       zerolog.Logger
}

// NewService creates a pricing service. maxFanout caps the concurrency of
// chain batches.
func NewService(maxFanout int, log zerolog.Logger) *Service {
	if maxFanout < 1 {
		maxFanout = 1
	}
	return &Service{
		maxFanout: maxFanout,
		log:       log.With().Str("component", "pricing").Logger(),
	}
}

// OptionRequest is one pricing request; chain legs reuse it.
type OptionRequest struct {
	PricingInputs
	Type   domain.OptionType  `json:"type"`
	Style  domain.OptionStyle `json:"style,omitempty"`  // defaults to EUROPEAN
	Method string             `json:"method,omitempty"` // black_scholes | binomial; empty picks by style
	Steps  int                `json:"steps,omitempty"`
}

// ImpliedVolRequest is a quote to invert.
type ImpliedVolRequest struct {
	ImpliedVolInputs
	Type   domain.OptionType `json:"type"`
	Method string            `json:"method,omitempty"` // brent | bisection | newton; defaults to brent
}

// ChainLegResult carries the outcome of one chain leg. Exactly one of Result
// and Error is set.
type ChainLegResult struct {
	Index  int          `json:"index"`
	Result *PriceResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Price prices a single option. American style routes to the lattice; an
// explicit black_scholes request for american exercise is rejected.
func (s *Service) Price(req OptionRequest) (PriceResult, error) {
	style := req.Style
	if style == "" {
		style = domain.StyleEuropean
	}
	if style != domain.StyleEuropean && style != domain.StyleAmerican {
		return PriceResult{}, fmt.Errorf("%w: unknown option style %q", domain.ErrValidation, req.Style)
	}

	method := req.Method
	if method == "" {
		if style == domain.StyleAmerican {
			method = MethodBinomial
		} else {
			method = MethodBlackScholes
		}
	}

	switch method {
	case MethodBlackScholes:
		if style == domain.StyleAmerican {
			return PriceResult{}, fmt.Errorf("%w: black_scholes cannot price american exercise", domain.ErrValidation)
		}
		return BlackScholes(req.PricingInputs, req.Type)
	case MethodBinomial:
		return Binomial(req.PricingInputs, req.Type, style, req.Steps)
	default:
		return PriceResult{}, fmt.Errorf("%w: unknown pricing method %q", domain.ErrValidation, method)
	}
}

// SolveImpliedVol recovers the volatility implied by a market quote.
func (s *Service) SolveImpliedVol(req ImpliedVolRequest) (ImpliedVolResult, error) {
	method := req.Method
	if method == "" {
		method = SolverBrent
	}
	return ImpliedVolatility(req.ImpliedVolInputs, req.Type, method)
}

// PriceChain prices a batch of legs concurrently. Per-leg failures are
// recorded in the leg slot rather than failing the batch; only cancellation
// aborts the whole call.
func (s *Service) PriceChain(ctx context.Context, legs []OptionRequest) ([]ChainLegResult, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("%w: chain request has no legs", domain.ErrValidation)
	}

	results := make([]ChainLegResult, len(legs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxFanout)

	for i, leg := range legs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.Price(leg)
			if err != nil {
				results[i] = ChainLegResult{Index: i, Error: err.Error()}
				return nil
			}
			results[i] = ChainLegResult{Index: i, Result: &res}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: chain pricing aborted", domain.ErrCancelled)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: chain pricing timed out", domain.ErrDeadline)
		}
		return nil, err
	}

	s.log.Debug().Int("legs", len(legs)).Msg("Priced option chain")
	return results, nil
}
