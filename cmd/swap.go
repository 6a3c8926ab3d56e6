package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dex-swap/config"
	"dex-swap/pkg/token"
	"dex-swap/pkg/trade"
)

type swapOptions struct {
	amount    string
	sell      string
	get       string
	via       []string
	delayMs   int
	noConfirm bool
}

var swapFlagKeys = map[string]string{
	"max-attempts":    "retry.max_attempts",
	"slippage-bps":    "trade.slippage_bps",
	"fee-on-transfer": "trade.fee_on_transfer",
}

func newSwapCmd() *cobra.Command {
	opts := &swapOptions{}

	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Sell an exact amount of a token for native currency",
		Long: `Sell an exact amount of a token for the chain's native currency through the router.

The output is quoted on-chain, the slippage tolerance is applied to get the
minimum accepted output, and the swap is retried on known transient reverts
(TransferHelper: TRANSFER_FROM_FAILED by default) with a fresh quote each time.

Examples:
  # Sell 250 METAL for BNB
  dex-swap swap -a 250 -s 0x8995f63d98aADDaC79afC92025431b0f50633DDA -g 0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c

  # Route through BUSD, retry every 5 seconds, forever
  dex-swap swap -a 250 -s <token> -g <wbnb> --via <busd> -d 5000 --max-attempts 0

  # Fee-on-transfer token, skip the confirmation prompt
  dex-swap swap -a 250 -s <token> -g <wbnb> --fee-on-transfer --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSwap(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.amount, "amount", "a", "", "Amount of the sell token (REQUIRED)")
	cmd.Flags().StringVarP(&opts.sell, "sell", "s", "", "Token contract to sell (REQUIRED)")
	cmd.Flags().StringVarP(&opts.get, "get", "g", "", "Token to receive, the wrapped native token (REQUIRED)")
	cmd.Flags().StringSliceVar(&opts.via, "via", nil, "Intermediate token for multi-hop routes (repeatable)")
	cmd.Flags().IntVarP(&opts.delayMs, "delay", "d", 0, "Milliseconds to wait between retries (default from config)")
	cmd.Flags().Int("max-attempts", 0, "Maximum attempts, 0 retries until cancelled (default from config)")
	cmd.Flags().Int("slippage-bps", 0, "Slippage tolerance in basis points (default from config)")
	cmd.Flags().Bool("fee-on-transfer", false, "Use the fee-on-transfer variant of the router call")
	cmd.Flags().BoolVarP(&opts.noConfirm, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func runSwap(cmd *cobra.Command, opts *swapOptions) error {
	if opts.amount == "" {
		return usageError(cmd, "amount", "--amount is required")
	}
	sell, err := parseAddress(cmd, "sell", opts.sell)
	if err != nil {
		return err
	}
	get, err := parseAddress(cmd, "get", opts.get)
	if err != nil {
		return err
	}
	via, err := parseVia(opts.via)
	if err != nil {
		return err
	}
	amount, err := token.ParseAmount(opts.amount)
	if err != nil {
		return config.Errorf("amount", "%v", err)
	}

	v := viper.New()
	if cmd.Flags().Changed("delay") {
		if opts.delayMs < 0 {
			return config.Errorf("delay", "cannot be negative")
		}
		v.Set("retry.delay", time.Duration(opts.delayMs)*time.Millisecond)
	}

	a, err := newApp(cmd, v, swapFlagKeys, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if get != a.cfg.WrappedNativeAddress() {
		return config.Errorf("get", "swap pays out native currency, --get must be the wrapped native token %s", a.cfg.WrappedNativeAddress().Hex())
	}

	ctx := cmd.Context()
	var sellMeta, getMeta *token.Metadata
	err = a.spin(" Fetching token details...", func() error {
		var err error
		if sellMeta, err = a.tokens.Lookup(ctx, sell); err != nil {
			return err
		}
		getMeta, err = a.tokens.Lookup(ctx, get)
		return err
	})
	if err != nil {
		return err
	}

	kind := trade.ExactTokensForETH
	if a.cfg.Trade.FeeOnTransfer {
		kind = trade.ExactTokensForETHFeeOnTransfer
	}
	req := trade.TradeRequest{
		Kind:           kind,
		SellToken:      sell,
		BuyToken:       get,
		Via:            via,
		Amount:         amount,
		Decimals:       sellMeta.Decimals,
		SlippageBps:    a.cfg.Trade.SlippageBps,
		DeadlineOffset: a.cfg.Trade.Deadline,
	}
	if err := req.Validate(); err != nil {
		return config.Errorf("amount", "%v", err)
	}

	if !opts.noConfirm && !a.jsonOutput {
		base, _ := req.BaseAmount()
		var quote *trade.Quote
		err := a.spin(" Fetching quote...", func() error {
			var err error
			quote, err = a.router.AmountsOut(ctx, base, req.Path())
			return err
		})
		if err != nil {
			return err
		}

		displaySwapQuote(a.out, req, quote, sellMeta, getMeta)
		if !confirmSwap(cmd.InOrStdin(), a.out) {
			fmt.Fprintln(a.out, "\nSwap cancelled.")
			return errCancelled
		}
	}

	exec, err := a.executor()
	if err != nil {
		return err
	}
	stop := a.trackStates(exec, "Swapping")
	res, err := exec.Execute(ctx, req)
	stop()
	if err != nil {
		return err
	}

	if a.jsonOutput {
		return printJSON(a.out, swapOutput(a.runID, res, sellMeta, getMeta))
	}
	displaySwapResult(a.out, "SWAP CONFIRMED", res, sellMeta, getMeta)
	return nil
}

func parseVia(values []string) ([]common.Address, error) {
	via := make([]common.Address, 0, len(values))
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if !common.IsHexAddress(raw) {
			return nil, config.Errorf("via", "invalid address %q", raw)
		}
		via = append(via, common.HexToAddress(raw))
	}
	return via, nil
}

type legOutput struct {
	Kind          string `json:"kind"`
	TxHash        string `json:"tx_hash"`
	Block         uint64 `json:"block"`
	GasUsed       uint64 `json:"gas_used"`
	Attempts      int    `json:"attempts"`
	AmountIn      string `json:"amount_in"`
	QuotedOut     string `json:"quoted_out"`
	MinimumOutput string `json:"minimum_output"`
}

func swapOutput(runID string, res *trade.Result, in, out *token.Metadata) map[string]interface{} {
	return map[string]interface{}{
		"run_id": runID,
		"status": string(res.Receipt.Status),
		"sell":   in.Address.Hex(),
		"get":    out.Address.Hex(),
		"swap":   legJSON(res, in, out),
	}
}

func legJSON(res *trade.Result, in, out *token.Metadata) legOutput {
	return legOutput{
		Kind:          string(res.Order.Request.Kind),
		TxHash:        res.Receipt.TxHash.Hex(),
		Block:         res.Receipt.BlockNumber,
		GasUsed:       res.Receipt.GasUsed,
		Attempts:      res.Attempts,
		AmountIn:      token.FormatUnits(res.Quote.Input(), in.Decimals),
		QuotedOut:     token.FormatUnits(res.Quote.Output(), out.Decimals),
		MinimumOutput: token.FormatUnits(res.Order.MinimumOutput, out.Decimals),
	}
}

func displaySwapQuote(w io.Writer, req trade.TradeRequest, quote *trade.Quote, in, out *token.Metadata) {
	minOut := trade.MinOutput(quote.Output(), req.SlippageBps)

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(w, color.GreenString("                     SWAP QUOTE"))
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "\n  From:              %s %s\n", token.FormatUnits(quote.Input(), in.Decimals), color.YellowString(symbol(in)))
	fmt.Fprintf(w, "  To:                ~%s %s\n", token.FormatUnits(quote.Output(), out.Decimals), color.YellowString(symbol(out)))
	fmt.Fprintf(w, "  Minimum Received:  %s %s\n", token.FormatUnits(minOut, out.Decimals), symbol(out))
	fmt.Fprintf(w, "  Slippage:          %s%%\n", bpsPercent(req.SlippageBps))
	fmt.Fprintf(w, "  Route:             %s\n", route(quote.Path))

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60)+"\n")
}

func displaySwapResult(w io.Writer, title string, res *trade.Result, in, out *token.Metadata) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(w, color.GreenString("                   %s", title))
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "\n  Transaction:       %s\n", color.CyanString(res.Receipt.TxHash.Hex()))
	fmt.Fprintf(w, "  Sold:              %s %s\n", token.FormatUnits(res.Quote.Input(), in.Decimals), symbol(in))
	fmt.Fprintf(w, "  Quoted Output:     ~%s %s\n", token.FormatUnits(res.Quote.Output(), out.Decimals), symbol(out))
	fmt.Fprintf(w, "  Block:             %d\n", res.Receipt.BlockNumber)
	fmt.Fprintf(w, "  Gas Used:          %d\n", res.Receipt.GasUsed)
	if res.Attempts > 1 {
		fmt.Fprintf(w, "  Attempts:          %s\n", color.YellowString("%d", res.Attempts))
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60)+"\n")
}

func symbol(md *token.Metadata) string {
	if md.Symbol != "" {
		return md.Symbol
	}
	return md.Address.Hex()
}

func route(path []common.Address) string {
	hops := make([]string, len(path))
	for i, addr := range path {
		hops[i] = shortAddress(addr)
	}
	return strings.Join(hops, " -> ")
}

func shortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

func bpsPercent(bps int) string {
	return decimal.New(int64(bps), -2).StringFixed(2)
}

func confirmSwap(in io.Reader, out io.Writer) bool {
	reader := bufio.NewReader(in)
	fmt.Fprint(out, "\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
