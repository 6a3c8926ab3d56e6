package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dex-swap/config"
	"dex-swap/pkg/token"
	"dex-swap/pkg/trade"
)

type quoteOptions struct {
	amount   string
	sell     string
	get      string
	via      []string
	exactOut bool
}

func newQuoteCmd() *cobra.Command {
	opts := &quoteOptions{}

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap without sending a transaction",
		Long: `Ask the router how much a swap would return (or cost, with --exact-out).
No private key is needed.

Examples:
  # How much METAL does 1 BNB buy?
  dex-swap quote -a 1 -s 0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c -g 0x8995f63d98aADDaC79afC92025431b0f50633DDA

  # How much BNB does it cost to buy exactly 200 METAL?
  dex-swap quote -a 200 -s <wbnb> -g <metal> --exact-out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuote(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.amount, "amount", "a", "", "Input amount, or output amount with --exact-out (REQUIRED)")
	cmd.Flags().StringVarP(&opts.sell, "sell", "s", "", "Token to sell (REQUIRED)")
	cmd.Flags().StringVarP(&opts.get, "get", "g", "", "Token to receive (REQUIRED)")
	cmd.Flags().StringSliceVar(&opts.via, "via", nil, "Intermediate token for multi-hop routes (repeatable)")
	cmd.Flags().BoolVar(&opts.exactOut, "exact-out", false, "Treat --amount as the desired output")
	cmd.Flags().Int("slippage-bps", 0, "Slippage tolerance in basis points (default from config)")

	return cmd
}

func runQuote(cmd *cobra.Command, opts *quoteOptions) error {
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

	a, err := newApp(cmd, nil, map[string]string{"slippage-bps": "trade.slippage_bps"}, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	var (
		sellMeta, getMeta *token.Metadata
		quote             *trade.Quote
	)
	err = a.spin(" Fetching quote...", func() error {
		var err error
		if sellMeta, err = a.tokens.Lookup(ctx, sell); err != nil {
			return err
		}
		if getMeta, err = a.tokens.Lookup(ctx, get); err != nil {
			return err
		}

		req := trade.TradeRequest{SellToken: sell, BuyToken: get, Via: via}
		if opts.exactOut {
			base, err := token.ToBase(amount, getMeta.Decimals)
			if err != nil {
				return config.Errorf("amount", "%v", err)
			}
			quote, err = a.router.AmountsIn(ctx, base, req.Path())
			return err
		}
		base, err := token.ToBase(amount, sellMeta.Decimals)
		if err != nil {
			return config.Errorf("amount", "%v", err)
		}
		quote, err = a.router.AmountsOut(ctx, base, req.Path())
		return err
	})
	if err != nil {
		return err
	}

	bps := a.cfg.Trade.SlippageBps
	minOut := trade.MinOutput(quote.Output(), bps)

	if a.jsonOutput {
		return printJSON(a.out, map[string]interface{}{
			"run_id":         a.runID,
			"sell":           sell.Hex(),
			"get":            get.Hex(),
			"exact_out":      opts.exactOut,
			"amount_in":      token.FormatUnits(quote.Input(), sellMeta.Decimals),
			"amount_out":     token.FormatUnits(quote.Output(), getMeta.Decimals),
			"minimum_output": token.FormatUnits(minOut, getMeta.Decimals),
			"slippage_bps":   bps,
			"path":           quote.Path,
			"amounts":        quote.Amounts,
		})
	}

	displaySwapQuote(a.out, trade.TradeRequest{SlippageBps: bps}, quote, sellMeta, getMeta)
	fmt.Fprintln(a.out, color.HiBlackString("Quote only, no transaction was sent."))
	return nil
}
