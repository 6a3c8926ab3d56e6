package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dex-swap/config"
	"dex-swap/pkg/chain"
)

type statusOptions struct {
	watch    bool
	interval time.Duration
}

func newStatusCmd() *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status <tx-hash>",
		Short: "Check the status of a swap transaction",
		Long: `Look up a transaction and its receipt.

Examples:
  dex-swap status 0x1234...abcd
  dex-swap status 0x1234...abcd --watch
  dex-swap status 0x1234...abcd --watch --interval 10s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Poll until the transaction is mined")
	cmd.Flags().DurationVar(&opts.interval, "interval", 5*time.Second, "Polling interval when watching")

	return cmd
}

func runStatus(cmd *cobra.Command, rawHash string, opts *statusOptions) error {
	hashBytes := common.FromHex(rawHash)
	if len(hashBytes) != common.HashLength {
		return config.Errorf("tx-hash", "invalid transaction hash %q", rawHash)
	}
	if opts.watch && opts.interval <= 0 {
		return config.Errorf("interval", "must be positive")
	}
	hash := common.BytesToHash(hashBytes)

	a, err := newApp(cmd, nil, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if !opts.watch {
		var info *chain.TxInfo
		err := a.spin(" Checking transaction status...", func() error {
			var err error
			info, err = a.session.TransactionInfo(ctx, hash)
			return err
		})
		if err != nil {
			return err
		}
		if a.jsonOutput {
			return printJSON(a.out, info)
		}
		displayStatus(a.out, info)
		return nil
	}

	if !a.jsonOutput {
		fmt.Fprintf(a.out, "\nWatching transaction %s\n", color.CyanString(hash.Hex()))
		fmt.Fprintf(a.out, "Checking every %s. Press Ctrl+C to stop.\n\n", opts.interval)
	}
	info, err := watchStatus(ctx, a.session, hash, opts.interval)
	if err != nil {
		return err
	}
	if a.jsonOutput {
		return printJSON(a.out, info)
	}
	displayStatus(a.out, info)
	return nil
}

// watchStatus polls until the transaction is mined or ctx is done
func watchStatus(ctx context.Context, session *chain.Session, hash common.Hash, interval time.Duration) (*chain.TxInfo, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		info, err := session.TransactionInfo(ctx, hash)
		if err == nil && !info.Pending {
			return info, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func displayStatus(w io.Writer, info *chain.TxInfo) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 70))
	fmt.Fprintln(w, color.GreenString("                     TRANSACTION STATUS"))
	fmt.Fprintln(w, strings.Repeat("=", 70))

	fmt.Fprintf(w, "\n  Hash:            %s\n", color.CyanString(info.Hash))
	fmt.Fprintf(w, "  Status:          %s\n", coloredStatus(info))
	if info.From != "" {
		fmt.Fprintf(w, "  From:            %s\n", info.From)
	}
	fmt.Fprintf(w, "  To:              %s\n", info.To)
	fmt.Fprintf(w, "  Nonce:           %d\n", info.Nonce)
	fmt.Fprintf(w, "  Value:           %s wei\n", info.Value)
	fmt.Fprintf(w, "  Gas Price:       %s wei\n", info.GasPrice)
	fmt.Fprintf(w, "  Gas Limit:       %d\n", info.GasLimit)
	if info.BlockNumber != nil {
		fmt.Fprintf(w, "  Block:           %d\n", *info.BlockNumber)
	}
	if info.GasUsed != nil {
		fmt.Fprintf(w, "  Gas Used:        %d\n", *info.GasUsed)
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 70)+"\n")
}

func coloredStatus(info *chain.TxInfo) string {
	switch {
	case info.Pending:
		return color.YellowString("PENDING")
	case info.Success != nil && *info.Success:
		return color.GreenString("SUCCESS")
	case info.Success != nil:
		return color.RedString("REVERTED")
	default:
		return "UNKNOWN"
	}
}
