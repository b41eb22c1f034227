// Command quantctl runs quantd's numerical core from the command line:
// price options, solve implied volatility and backtest a strategy over a
// local CSV of daily bars. No running server required.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/version"
	"github.com/quantleap/quantd/pkg/logger"
)

// Exit codes. Scripts branch on these; keep them stable.
const (
	exitUsage      = 1
	exitValidation = 2
	exitData       = 3
	exitCancelled  = 4
)

var rootCmd = &cobra.Command{
	Use:   "quantctl",
	Short: "Offline companion to the quantd analytics daemon",
	Long: `quantctl exposes quantd's pricing and backtesting engines as local
commands. Option pricing and implied volatility run entirely in memory;
backtests read daily bars from a CSV file instead of the market store.

Example usage:
  quantctl price --spot 100 --strike 100 --expiry-years 0.5 --vol 0.2
  quantctl iv --price 4.61 --spot 100 --strike 100 --expiry-years 0.5
  quantctl backtest --bars aapl.csv --strategy momentum.json`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the quantctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("quantctl %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the engine's error taxonomy onto shell exit codes: 2 for
// rejected inputs, 3 for missing data, 4 for interruption, 1 otherwise.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.Is(err, domain.ErrDataUnavailable):
		return exitData
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNumerical):
		return exitValidation
	default:
		return exitUsage
	}
}

// cliLogger routes engine warnings to stderr so stdout stays parseable.
func cliLogger() zerolog.Logger {
	return logger.New(logger.Config{Level: "warn", Pretty: true, Out: os.Stderr})
}

func parseOptionType(s string) (domain.OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(domain.OptionCall):
		return domain.OptionCall, nil
	case string(domain.OptionPut):
		return domain.OptionPut, nil
	default:
		return "", fmt.Errorf("%w: option type %q, want call or put", domain.ErrValidation, s)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
