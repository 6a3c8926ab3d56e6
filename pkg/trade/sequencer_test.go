package trade

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSequencer(q Quoter, sub Submitter) (*Sequencer, *recordedSleep) {
	exec := NewExecutor(q, sub, Policy{MaxAttempts: 1}, zap.NewNop())
	sleeper := &recordedSleep{}
	exec.sleep = sleeper.sleep

	seq := NewSequencer(exec, decimal.RequireFromString("200.0"), 10*time.Second, zap.NewNop())
	seq.sleep = sleeper.sleep
	return seq, sleeper
}

func TestSequencer_BuyThenSell(t *testing.T) {
	q := &fakeQuoter{}
	sub := &fakeSubmitter{}
	seq, sleeper := newTestSequencer(q, sub)

	res, err := seq.Run(context.Background(), buyRequest("200.0"), sellRequest("250.0"))
	require.NoError(t, err)

	require.NotNil(t, res.Buy)
	require.NotNil(t, res.Sell)
	assert.False(t, res.Fallback)
	assert.Nil(t, res.SellErr)
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeper.waits)

	require.Len(t, sub.submitted, 2)
	assert.Equal(t, ETHForExactTokens, sub.submitted[0].Request.Kind)
	assert.Equal(t, ExactTokensForETH, sub.submitted[1].Request.Kind)
	assert.Equal(t, units(250, 18).String(), sub.submitted[1].AmountIn.String())
}

func TestSequencer_FallbackUsesSmallerAmountAndFreshQuote(t *testing.T) {
	q := &fakeQuoter{}
	sub := &fakeSubmitter{submitErrs: []error{nil, fatalErr("TransferHelper: TRANSFER_FAILED")}}
	seq, _ := newTestSequencer(q, sub)

	res, err := seq.Run(context.Background(), buyRequest("200.0"), sellRequest("250.0"))
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Error(t, res.SellErr)
	require.NotNil(t, res.Sell)

	// buy quote, sell quote, fallback quote
	require.Len(t, q.calls, 3)
	assert.Equal(t, units(250, 18).String(), q.calls[1].amount.String())
	assert.Equal(t, units(200, 18).String(), q.calls[2].amount.String())

	require.Len(t, sub.submitted, 3)
	fallback := sub.submitted[2]
	assert.Equal(t, units(200, 18).String(), fallback.AmountIn.String())
	assert.Equal(t, MinOutput(units(400, 18), 100).String(), fallback.MinimumOutput.String(),
		"fallback min output must come from the fallback quote, not the first sell quote")
}

func TestSequencer_FallbackExhausted(t *testing.T) {
	sub := &fakeSubmitter{submitErrs: []error{nil, fatalErr("Pancake: K"), fatalErr("Pancake: K")}}
	seq, _ := newTestSequencer(&fakeQuoter{}, sub)

	res, err := seq.Run(context.Background(), buyRequest("200.0"), sellRequest("250.0"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFallbackExhausted)
	assert.NotNil(t, res.Buy, "bought leg is still reported")
	assert.Len(t, sub.submitted, 3, "exactly one fallback attempt")
}

func TestSequencer_BuyFailureSkipsSell(t *testing.T) {
	sub := &fakeSubmitter{submitErrs: []error{fatalErr("PancakeRouter: EXCESSIVE_INPUT_AMOUNT")}}
	seq, sleeper := newTestSequencer(&fakeQuoter{}, sub)

	_, err := seq.Run(context.Background(), buyRequest("200.0"), sellRequest("250.0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buy leg")
	assert.Len(t, sub.submitted, 1)
	assert.Empty(t, sleeper.waits)
}

func TestSequencer_QuoteFailureOnSellFallsBack(t *testing.T) {
	q := &flakyQuoter{fakeQuoter: &fakeQuoter{}, failOn: 2}
	sub := &fakeSubmitter{}
	seq, _ := newTestSequencer(q, sub)

	res, err := seq.Run(context.Background(), buyRequest("200.0"), sellRequest("250.0"))
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.ErrorIs(t, res.SellErr, ErrQuoteUnavailable)
}

func TestSequencer_RejectsWrongLegKinds(t *testing.T) {
	seq, _ := newTestSequencer(&fakeQuoter{}, &fakeSubmitter{})

	_, err := seq.Run(context.Background(), sellRequest("1"), sellRequest("1"))
	assert.Error(t, err)

	_, err = seq.Run(context.Background(), buyRequest("1"), buyRequest("1"))
	assert.Error(t, err)
}

// flakyQuoter fails the n-th quote (1-based) with ErrQuoteUnavailable
type flakyQuoter struct {
	*fakeQuoter
	failOn int
	n      int
}

func (f *flakyQuoter) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*Quote, error) {
	f.n++
	if f.n == f.failOn {
		return nil, errors.Join(ErrQuoteUnavailable, errors.New("no pool"))
	}
	return f.fakeQuoter.AmountsOut(ctx, amountIn, path)
}

func (f *flakyQuoter) AmountsIn(ctx context.Context, amountOut *big.Int, path []common.Address) (*Quote, error) {
	f.n++
	if f.n == f.failOn {
		return nil, errors.Join(ErrQuoteUnavailable, errors.New("no pool"))
	}
	return f.fakeQuoter.AmountsIn(ctx, amountOut, path)
}
