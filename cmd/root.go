package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dex-swap/config"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dex-swap",
		Short: "A CLI for swapping tokens through a DEX router",
		Long: `dex-swap places buy and sell orders against a UniswapV2-style router
(PancakeSwap by default) for a single wallet. Quotes are fetched on-chain,
a slippage tolerance is applied, and the swap is retried on known transient
revert reasons.

Examples:
  dex-swap swap --amount 250 --sell 0x8995...3DDA --get 0xbb4C...095c
  dex-swap buy-sell --token 0x8995...3DDA
  dex-swap quote --amount 1 --sell 0xbb4C...095c --get 0x8995...3DDA
  dex-swap token 0x8995...3DDA
  dex-swap status <tx-hash>`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	flags := root.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Enable verbose output")
	flags.BoolP("json", "j", false, "Output in JSON format")
	flags.String("config", "", "Config file (default is $HOME/.dex-swap.yaml)")
	flags.String("rpc-url", "", "JSON-RPC endpoint")
	flags.String("router", "", "Router contract address")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(
		newSwapCmd(),
		newBuySellCmd(),
		newQuoteCmd(),
		newTokenCmd(),
		newStatusCmd(),
	)
	return root
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errCancelled):
		return ExitOK
	case config.IsError(err):
		return ExitConfig
	default:
		return ExitFailure
	}
}

var errCancelled = errors.New("cancelled by user")

// usageError prints the command help and reports a configuration error
func usageError(cmd *cobra.Command, key, msg string) error {
	_ = cmd.Help()
	return config.Errorf(key, "%s", msg)
}

// PrintError writes err to w the way commands report failures
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "\n%s %v\n\n", color.RedString("Error:"), err)
}
