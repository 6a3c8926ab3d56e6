package trade

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	wbnb  = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	metal = common.HexToAddress("0x8995f63d98aADDaC79afC92025431b0f50633DDA")
	busd  = common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56")
)

type quoteCall struct {
	exactOut bool
	amount   *big.Int
	path     []common.Address
}

// fakeQuoter prices every hop at 2x for AmountsOut and 3x input for AmountsIn
type fakeQuoter struct {
	mu    sync.Mutex
	calls []quoteCall
	err   error
}

func (f *fakeQuoter) AmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) (*Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, quoteCall{amount: new(big.Int).Set(amountIn), path: path})
	if f.err != nil {
		return nil, f.err
	}
	amounts := []*big.Int{new(big.Int).Set(amountIn)}
	for i := 1; i < len(path); i++ {
		amounts = append(amounts, new(big.Int).Mul(amounts[i-1], big.NewInt(2)))
	}
	return &Quote{Path: path, Amounts: amounts}, nil
}

func (f *fakeQuoter) AmountsIn(_ context.Context, amountOut *big.Int, path []common.Address) (*Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, quoteCall{exactOut: true, amount: new(big.Int).Set(amountOut), path: path})
	if f.err != nil {
		return nil, f.err
	}
	return &Quote{Path: path, Amounts: []*big.Int{new(big.Int).Mul(amountOut, big.NewInt(3)), new(big.Int).Set(amountOut)}}, nil
}

// fakeSubmitter returns queued errors for Submit in order, then succeeds
type fakeSubmitter struct {
	mu          sync.Mutex
	simErr      error
	submitErrs  []error
	submitted   []*SwapOrder
	simulated   int
	nextTxIndex int64
}

func (f *fakeSubmitter) Simulate(_ context.Context, _ *SwapOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulated++
	return f.simErr
}

func (f *fakeSubmitter) Submit(_ context.Context, order *SwapOrder) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, order)
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.nextTxIndex++
	return &Receipt{
		TxHash:      common.BigToHash(big.NewInt(f.nextTxIndex)),
		Status:      ReceiptConfirmed,
		BlockNumber: 100,
		GasUsed:     150000,
	}, nil
}

type recordedSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

const transferFromFailed = "TransferHelper: TRANSFER_FROM_FAILED"

func retryableErr() error {
	return &SwapError{Kind: FailureRetryable, Stage: StateSubmitting, Reason: transferFromFailed, Err: errors.New("execution reverted: " + transferFromFailed)}
}

func fatalErr(reason string) error {
	return &SwapError{Kind: FailureFatal, Stage: StateSubmitting, Reason: reason, Err: errors.New("execution reverted: " + reason)}
}

func sellRequest(amount string) TradeRequest {
	return TradeRequest{
		Kind:           ExactTokensForETH,
		SellToken:      metal,
		BuyToken:       wbnb,
		Amount:         decimal.RequireFromString(amount),
		Decimals:       18,
		SlippageBps:    100,
		DeadlineOffset: 5 * time.Minute,
	}
}

func buyRequest(amount string) TradeRequest {
	return TradeRequest{
		Kind:           ETHForExactTokens,
		SellToken:      wbnb,
		BuyToken:       metal,
		Amount:         decimal.RequireFromString(amount),
		Decimals:       18,
		SlippageBps:    100,
		DeadlineOffset: 5 * time.Minute,
	}
}

func units(whole int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}
