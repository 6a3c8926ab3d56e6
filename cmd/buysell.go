package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dex-swap/config"
	"dex-swap/pkg/token"
	"dex-swap/pkg/trade"
)

var buySellFlagKeys = map[string]string{
	"token":           "buy_sell.token",
	"buy-amount":      "buy_sell.buy_amount",
	"sell-amount":     "buy_sell.sell_amount",
	"fallback-amount": "buy_sell.fallback_amount",
	"leg-delay":       "buy_sell.leg_delay",
	"max-attempts":    "retry.max_attempts",
	"slippage-bps":    "trade.slippage_bps",
	"fee-on-transfer": "trade.fee_on_transfer",
}

func newBuySellCmd() *cobra.Command {
	var noConfirm bool

	cmd := &cobra.Command{
		Use:   "buy-sell",
		Short: "Buy a token with native currency, then sell it back",
		Long: `Buy an exact amount of a token with native currency, wait, then sell a
(usually larger) amount of the same token back. If the sell leg fails it is
tried exactly once more with the fallback amount and a fresh quote.

Examples:
  # Defaults: buy 200, sell 250, fall back to 200, 10s between legs
  dex-swap buy-sell --token 0x8995f63d98aADDaC79afC92025431b0f50633DDA

  # Custom amounts
  dex-swap buy-sell -t <token> --buy-amount 100 --sell-amount 120 --fallback-amount 100 --leg-delay 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuySell(cmd, noConfirm)
		},
	}

	cmd.Flags().StringP("token", "t", "", "Token contract to trade (default from config)")
	cmd.Flags().String("buy-amount", "", "Exact amount of the token to buy (default from config)")
	cmd.Flags().String("sell-amount", "", "Amount of the token to sell (default from config)")
	cmd.Flags().String("fallback-amount", "", "Amount sold if the sell leg fails (default from config)")
	cmd.Flags().Duration("leg-delay", 0, "Wait between the buy and the sell leg (default from config)")
	cmd.Flags().Int("max-attempts", 0, "Maximum attempts per leg, 0 retries until cancelled (default from config)")
	cmd.Flags().Int("slippage-bps", 0, "Slippage tolerance in basis points (default from config)")
	cmd.Flags().Bool("fee-on-transfer", false, "Sell with the fee-on-transfer variant of the router call")
	cmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func runBuySell(cmd *cobra.Command, noConfirm bool) error {
	a, err := newApp(cmd, nil, buySellFlagKeys, true)
	if err != nil {
		return err
	}
	defer a.Close()

	bs := a.cfg.BuySell
	if bs.Token == "" {
		return usageError(cmd, "token", "--token is required")
	}
	tokenAddr, err := parseAddress(cmd, "token", bs.Token)
	if err != nil {
		return err
	}
	native := a.cfg.WrappedNativeAddress()

	// amounts were validated by config.Load
	buyAmount, _ := config.PositiveAmount("buy_sell.buy_amount", bs.BuyAmount)
	sellAmount, _ := config.PositiveAmount("buy_sell.sell_amount", bs.SellAmount)
	fallbackAmount, _ := config.PositiveAmount("buy_sell.fallback_amount", bs.FallbackAmount)

	ctx := cmd.Context()
	var tokenMeta, nativeMeta *token.Metadata
	err = a.spin(" Fetching token details...", func() error {
		var err error
		if tokenMeta, err = a.tokens.Lookup(ctx, tokenAddr); err != nil {
			return err
		}
		nativeMeta, err = a.tokens.Lookup(ctx, native)
		return err
	})
	if err != nil {
		return err
	}

	sellKind := trade.ExactTokensForETH
	if a.cfg.Trade.FeeOnTransfer {
		sellKind = trade.ExactTokensForETHFeeOnTransfer
	}
	buy := trade.TradeRequest{
		Kind:           trade.ETHForExactTokens,
		SellToken:      native,
		BuyToken:       tokenAddr,
		Amount:         buyAmount,
		Decimals:       tokenMeta.Decimals,
		SlippageBps:    a.cfg.Trade.SlippageBps,
		DeadlineOffset: a.cfg.Trade.Deadline,
	}
	sell := trade.TradeRequest{
		Kind:           sellKind,
		SellToken:      tokenAddr,
		BuyToken:       native,
		Amount:         sellAmount,
		Decimals:       tokenMeta.Decimals,
		SlippageBps:    a.cfg.Trade.SlippageBps,
		DeadlineOffset: a.cfg.Trade.Deadline,
	}
	for _, req := range []trade.TradeRequest{buy, sell, sell.WithAmount(fallbackAmount)} {
		if err := req.Validate(); err != nil {
			return config.Errorf("buy_sell", "%v", err)
		}
	}

	if !noConfirm && !a.jsonOutput {
		displayBuySellPlan(a.out, tokenMeta, nativeMeta, a.cfg.BuySell)
		if !confirmSwap(cmd.InOrStdin(), a.out) {
			fmt.Fprintln(a.out, "\nBuy-sell cancelled.")
			return errCancelled
		}
	}

	exec, err := a.executor()
	if err != nil {
		return err
	}
	stop := a.trackStates(exec, "Trading")
	seq := trade.NewSequencer(exec, fallbackAmount, bs.LegDelay, a.log)
	res, err := seq.Run(ctx, buy, sell)
	stop()

	if res != nil && res.Buy != nil && !a.jsonOutput {
		displaySwapResult(a.out, "BUY CONFIRMED", res.Buy, nativeMeta, tokenMeta)
	}
	if err != nil {
		if errors.Is(err, trade.ErrFallbackExhausted) {
			a.log.Error("token balance may be left unsold", zap.String("token", tokenAddr.Hex()))
		}
		return err
	}

	if a.jsonOutput {
		out := map[string]interface{}{
			"run_id":   a.runID,
			"token":    tokenAddr.Hex(),
			"buy":      legJSON(res.Buy, nativeMeta, tokenMeta),
			"sell":     legJSON(res.Sell, tokenMeta, nativeMeta),
			"fallback": res.Fallback,
		}
		if res.SellErr != nil {
			out["sell_error"] = res.SellErr.Error()
		}
		return printJSON(a.out, out)
	}

	title := "SELL CONFIRMED"
	if res.Fallback {
		title = "FALLBACK SELL CONFIRMED"
		fmt.Fprintf(a.out, "%s %v\n", color.YellowString("Sell leg failed, sold the fallback amount instead:"), res.SellErr)
	}
	displaySwapResult(a.out, title, res.Sell, tokenMeta, nativeMeta)
	return nil
}

func displayBuySellPlan(w io.Writer, tok, native *token.Metadata, bs config.BuySellConfig) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(w, color.GreenString("                   BUY-SELL PLAN"))
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "\n  Token:             %s (%s)\n", color.YellowString(symbol(tok)), tok.Address.Hex())
	fmt.Fprintf(w, "  1. Buy:            %s %s with %s\n", bs.BuyAmount, symbol(tok), symbol(native))
	fmt.Fprintf(w, "  2. Wait:           %s\n", bs.LegDelay)
	fmt.Fprintf(w, "  3. Sell:           %s %s for %s\n", bs.SellAmount, symbol(tok), symbol(native))
	fmt.Fprintf(w, "     Fallback:       %s %s\n", bs.FallbackAmount, symbol(tok))

	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60)+"\n")
}
