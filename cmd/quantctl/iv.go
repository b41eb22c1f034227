package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quantleap/quantd/internal/modules/pricing"
)

var (
	ivPrice    float64
	ivSpot     float64
	ivStrike   float64
	ivExpiry   float64
	ivRate     float64
	ivDivYield float64
	ivType     string
	ivMethod   string
	ivJSON     bool
)

var ivCmd = &cobra.Command{
	Use:   "iv",
	Short: "Solve the implied volatility behind a market price",
	Long: `Recover the Black-Scholes volatility that reproduces a quoted option
price. Quotes at or below intrinsic value report the minimum volatility;
quotes no volatility can reach report converged=false.

Example usage:
  quantctl iv --price 4.61 --spot 100 --strike 100 --expiry-years 0.5
  quantctl iv --price 2.30 --spot 50 --strike 55 --expiry-years 0.25 --type put --method newton`,
	RunE: runIV,
}

func init() {
	rootCmd.AddCommand(ivCmd)

	ivCmd.Flags().Float64Var(&ivPrice, "price", 0, "Observed market price of the option")
	ivCmd.Flags().Float64Var(&ivSpot, "spot", 0, "Spot price of the underlying")
	ivCmd.Flags().Float64Var(&ivStrike, "strike", 0, "Strike price")
	ivCmd.Flags().Float64Var(&ivExpiry, "expiry-years", 0, "Time to expiry in years")
	ivCmd.Flags().Float64Var(&ivRate, "rate", 0.02, "Annualized risk-free rate")
	ivCmd.Flags().Float64Var(&ivDivYield, "div-yield", 0, "Continuous dividend yield")
	ivCmd.Flags().StringVar(&ivType, "type", "call", "Option type: call or put")
	ivCmd.Flags().StringVar(&ivMethod, "method", "", "Solver: brent, bisection or newton (default brent)")
	ivCmd.Flags().BoolVar(&ivJSON, "json", false, "Emit JSON instead of a table")

	_ = ivCmd.MarkFlagRequired("price")
	_ = ivCmd.MarkFlagRequired("spot")
	_ = ivCmd.MarkFlagRequired("strike")
	_ = ivCmd.MarkFlagRequired("expiry-years")
}

func runIV(cmd *cobra.Command, args []string) error {
	optType, err := parseOptionType(ivType)
	if err != nil {
		return err
	}

	svc := pricing.NewService(1, cliLogger())
	result, err := svc.SolveImpliedVol(pricing.ImpliedVolRequest{
		ImpliedVolInputs: pricing.ImpliedVolInputs{
			S:           ivSpot,
			K:           ivStrike,
			T:           ivExpiry,
			R:           ivRate,
			Q:           ivDivYield,
			MarketPrice: ivPrice,
		},
		Type:   optType,
		Method: strings.ToLower(strings.TrimSpace(ivMethod)),
	})
	if err != nil {
		return err
	}

	if ivJSON {
		return printJSON(result)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Implied vol\t%.6f\n", result.ImpliedVol)
	fmt.Fprintf(w, "Converged\t%t\n", result.Converged)
	fmt.Fprintf(w, "Iterations\t%d\n", result.Iterations)
	fmt.Fprintf(w, "Model price\t%.6f\n", result.FinalPrice)
	fmt.Fprintf(w, "Price error\t%.8f\n", result.PriceError)
	fmt.Fprintf(w, "Method\t%s\n", result.Method)
	return w.Flush()
}
