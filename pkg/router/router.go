package router

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"dex-swap/pkg/chain"
	"dex-swap/pkg/trade"
)

// routerABI covers the quoting and ETH-leg swap functions of a UniswapV2-style router
const routerABI = `[
 {"inputs":[],"name":"WETH","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsIn","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapETHForExactTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForETH","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForETHSupportingFeeOnTransferTokens","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// ABI returns the parsed router ABI
func ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		panic(fmt.Sprintf("router: bad ABI: %v", err))
	}
	return parsed
}

// Router is a bound UniswapV2-style router contract
type Router struct {
	session *chain.Session
	address common.Address
	abi     abi.ABI
}

// New binds the router at address
func New(session *chain.Session, address common.Address) *Router {
	return &Router{
		session: session,
		address: address,
		abi:     ABI(),
	}
}

// Address returns the router contract address
func (r *Router) Address() common.Address {
	return r.address
}

// WETH returns the wrapped native token the router pairs against
func (r *Router) WETH(ctx context.Context) (common.Address, error) {
	outs, err := r.call(ctx, "WETH")
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to call WETH: %w", err)
	}
	addr, ok := outs[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected WETH result type %T", outs[0])
	}
	return addr, nil
}

// AmountsOut quotes how much each hop yields for an exact input
func (r *Router) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*trade.Quote, error) {
	return r.amounts(ctx, "getAmountsOut", amountIn, path)
}

// AmountsIn quotes how much each hop needs for an exact output
func (r *Router) AmountsIn(ctx context.Context, amountOut *big.Int, path []common.Address) (*trade.Quote, error) {
	return r.amounts(ctx, "getAmountsIn", amountOut, path)
}

func (r *Router) amounts(ctx context.Context, method string, amount *big.Int, path []common.Address) (*trade.Quote, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: path needs at least 2 tokens, got %d", trade.ErrQuoteUnavailable, len(path))
	}

	outs, err := r.call(ctx, method, amount, path)
	if err != nil {
		if reason, ok := chain.RevertReason(err); ok && reason != "" {
			return nil, fmt.Errorf("%w: %s reverted: %s", trade.ErrQuoteUnavailable, method, reason)
		}
		return nil, fmt.Errorf("%w: %s: %v", trade.ErrQuoteUnavailable, method, err)
	}

	amounts, ok := outs[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %s result type %T", trade.ErrQuoteUnavailable, method, outs[0])
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("%w: %s returned %d amounts for a %d-token path", trade.ErrQuoteUnavailable, method, len(amounts), len(path))
	}

	return &trade.Quote{
		Path:    append([]common.Address(nil), path...),
		Amounts: amounts,
	}, nil
}

func (r *Router) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := r.session.Backend.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	outs, err := r.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return outs, nil
}

// PackSwap encodes the router call for order, paying out to recipient
func (r *Router) PackSwap(order *trade.SwapOrder, recipient common.Address) ([]byte, error) {
	deadline := big.NewInt(order.Deadline.Unix())

	switch order.Request.Kind {
	case trade.ETHForExactTokens:
		return r.abi.Pack("swapETHForExactTokens", order.MinimumOutput, order.Path, recipient, deadline)
	case trade.ExactTokensForETH:
		return r.abi.Pack("swapExactTokensForETH", order.AmountIn, order.MinimumOutput, order.Path, recipient, deadline)
	case trade.ExactTokensForETHFeeOnTransfer:
		return r.abi.Pack("swapExactTokensForETHSupportingFeeOnTransferTokens", order.AmountIn, order.MinimumOutput, order.Path, recipient, deadline)
	default:
		return nil, fmt.Errorf("unsupported swap kind: %s", order.Request.Kind)
	}
}
