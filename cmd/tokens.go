package cmd

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dex-swap/config"
	"dex-swap/pkg/token"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "token <address>",
		Aliases: []string{"tokens"},
		Short:   "Show ERC-20 token details",
		Long: `Show the name, symbol and decimals of an ERC-20 token. When a private key
is configured the wallet's balance of the token is shown too.

Examples:
  dex-swap token 0x8995f63d98aADDaC79afC92025431b0f50633DDA
  dex-swap token 0x8995f63d98aADDaC79afC92025431b0f50633DDA --json`,
		Args: cobra.ExactArgs(1),
		RunE: runToken,
	}
}

func runToken(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(args[0]) {
		return config.Errorf("address", "invalid address %q", args[0])
	}
	addr := common.HexToAddress(args[0])

	a, err := newApp(cmd, nil, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	var (
		md      *token.Metadata
		balance string
	)
	err = a.spin(" Fetching token details...", func() error {
		var err error
		if md, err = a.tokens.Lookup(ctx, addr); err != nil {
			return err
		}
		if !a.session.CanSign() {
			return nil
		}
		raw, err := a.tokens.Token(addr).BalanceOf(ctx, a.session.From)
		if err != nil {
			return err
		}
		balance = token.FormatUnits(raw, md.Decimals)
		return nil
	})
	if err != nil {
		return err
	}

	if a.jsonOutput {
		out := map[string]interface{}{
			"address":  md.Address.Hex(),
			"name":     md.Name,
			"symbol":   md.Symbol,
			"decimals": md.Decimals,
		}
		if balance != "" {
			out["balance"] = balance
			out["account"] = a.session.From.Hex()
		}
		return printJSON(a.out, out)
	}

	w := a.out
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(w, color.GreenString("                     TOKEN"))
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "\n  Address:   %s\n", color.CyanString(md.Address.Hex()))
	fmt.Fprintf(w, "  Name:      %s\n", md.Name)
	fmt.Fprintf(w, "  Symbol:    %s\n", color.YellowString(md.Symbol))
	fmt.Fprintf(w, "  Decimals:  %d\n", md.Decimals)
	if balance != "" {
		fmt.Fprintf(w, "  Balance:   %s (%s)\n", balance, color.HiBlackString(a.session.From.Hex()))
	}
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60)+"\n")
	return nil
}
