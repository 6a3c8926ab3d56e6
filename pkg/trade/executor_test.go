package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stateLog struct {
	states   []State
	attempts []int
}

func (s *stateLog) record(state State, attempt int) {
	s.states = append(s.states, state)
	s.attempts = append(s.attempts, attempt)
}

func (s *stateLog) count(state State) int {
	n := 0
	for _, st := range s.states {
		if st == state {
			n++
		}
	}
	return n
}

func newTestExecutor(q Quoter, sub Submitter, policy Policy) (*Executor, *stateLog, *recordedSleep) {
	exec := NewExecutor(q, sub, policy, zap.NewNop())
	states := &stateLog{}
	sleeper := &recordedSleep{}
	exec.OnState(states.record)
	exec.sleep = sleeper.sleep
	return exec, states, sleeper
}

func TestExecutor_Success(t *testing.T) {
	q := &fakeQuoter{}
	sub := &fakeSubmitter{}
	exec, states, sleeper := newTestExecutor(q, sub, DefaultPolicy())

	res, err := exec.Execute(context.Background(), sellRequest("250.0"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, ReceiptConfirmed, res.Receipt.Status)
	assert.Equal(t, []State{StateQuoting, StateSimulating, StateSubmitting, StateConfirmed}, states.states)
	assert.Empty(t, sleeper.waits)

	require.Len(t, q.calls, 1)
	assert.False(t, q.calls[0].exactOut)
	assert.Equal(t, units(250, 18).String(), q.calls[0].amount.String())

	require.Len(t, sub.submitted, 1)
	order := sub.submitted[0]
	// fake quoter doubles per hop, 1% slippage
	wantMin := MinOutput(units(500, 18), 100)
	assert.Equal(t, wantMin.String(), order.MinimumOutput.String())
	assert.Equal(t, units(250, 18).String(), order.AmountIn.String())
	assert.Equal(t, int64(0), order.Value.Int64())
	assert.Equal(t, 1, sub.simulated)
}

func TestExecutor_SimulationDisabled(t *testing.T) {
	sub := &fakeSubmitter{}
	exec, states, _ := newTestExecutor(&fakeQuoter{}, sub, DefaultPolicy())
	exec.SetSimulate(false)

	_, err := exec.Execute(context.Background(), sellRequest("1"))
	require.NoError(t, err)
	assert.Equal(t, 0, sub.simulated)
	assert.NotContains(t, states.states, StateSimulating)
}

func TestExecutor_RetryableFailureRequotes(t *testing.T) {
	q := &fakeQuoter{}
	sub := &fakeSubmitter{submitErrs: []error{retryableErr()}}
	policy := Policy{MaxAttempts: 5, Delay: 1500 * time.Millisecond, Backoff: BackoffFixed}
	exec, states, sleeper := newTestExecutor(q, sub, policy)

	res, err := exec.Execute(context.Background(), sellRequest("10"))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, states.count(StateFailedRetryable))
	assert.Equal(t, 2, states.count(StateQuoting))
	assert.Equal(t, []State{
		StateQuoting, StateSimulating, StateSubmitting, StateFailedRetryable,
		StateQuoting, StateSimulating, StateSubmitting, StateConfirmed,
	}, states.states)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, sleeper.waits)
	assert.Len(t, q.calls, 2, "quote must be fetched fresh on every retry")
}

func TestExecutor_EachRetryableFailureReentersQuotingOnce(t *testing.T) {
	q := &fakeQuoter{}
	sub := &fakeSubmitter{submitErrs: []error{retryableErr(), retryableErr(), retryableErr()}}
	exec, states, sleeper := newTestExecutor(q, sub, Policy{MaxAttempts: 10, Delay: time.Second})

	res, err := exec.Execute(context.Background(), sellRequest("10"))
	require.NoError(t, err)

	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 3, states.count(StateFailedRetryable))
	assert.Equal(t, 4, states.count(StateQuoting))
	assert.Len(t, sleeper.waits, 3)
	assert.Len(t, q.calls, 4)
}

func TestExecutor_FatalReasonNoRetry(t *testing.T) {
	q := &fakeQuoter{}
	sub := &fakeSubmitter{submitErrs: []error{fatalErr("PancakeRouter: INSUFFICIENT_OUTPUT_AMOUNT")}}
	exec, states, sleeper := newTestExecutor(q, sub, DefaultPolicy())

	_, err := exec.Execute(context.Background(), sellRequest("10"))
	require.Error(t, err)

	var swapErr *SwapError
	require.True(t, errors.As(err, &swapErr))
	assert.Equal(t, FailureFatal, swapErr.Kind)
	assert.Equal(t, "PancakeRouter: INSUFFICIENT_OUTPUT_AMOUNT", swapErr.Reason)

	assert.Equal(t, 1, states.count(StateQuoting))
	assert.Equal(t, StateFailedFatal, states.states[len(states.states)-1])
	assert.Empty(t, sleeper.waits)
	assert.Len(t, sub.submitted, 1)
}

func TestExecutor_SimulationFailureIsClassified(t *testing.T) {
	sub := &fakeSubmitter{simErr: &SwapError{Kind: FailureFatal, Stage: StateSimulating, Reason: "Pancake: K"}}
	exec, states, _ := newTestExecutor(&fakeQuoter{}, sub, DefaultPolicy())

	_, err := exec.Execute(context.Background(), sellRequest("10"))
	require.Error(t, err)
	assert.Empty(t, sub.submitted, "nothing is sent when the dry-run fails")
	assert.NotContains(t, states.states, StateSubmitting)
}

func TestExecutor_UnexpectedErrorIsFatal(t *testing.T) {
	sub := &fakeSubmitter{submitErrs: []error{errors.New("connection reset by peer")}}
	exec, _, sleeper := newTestExecutor(&fakeQuoter{}, sub, DefaultPolicy())

	_, err := exec.Execute(context.Background(), sellRequest("10"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, sleeper.waits)
}

func TestExecutor_RetriesExhausted(t *testing.T) {
	q := &fakeQuoter{}
	sub := &fakeSubmitter{submitErrs: []error{retryableErr(), retryableErr(), retryableErr(), retryableErr()}}
	exec, states, sleeper := newTestExecutor(q, sub, Policy{MaxAttempts: 3, Delay: time.Second})

	_, err := exec.Execute(context.Background(), sellRequest("10"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.True(t, Retryable(err), "last failure stays reachable")

	assert.Len(t, q.calls, 3)
	assert.Len(t, sleeper.waits, 2)
	assert.Equal(t, 3, states.count(StateFailedRetryable))
}

func TestExecutor_QuoteUnavailableNotRetried(t *testing.T) {
	q := &fakeQuoter{err: fmt.Errorf("%w: execution reverted", ErrQuoteUnavailable)}
	sub := &fakeSubmitter{}
	exec, states, sleeper := newTestExecutor(q, sub, DefaultPolicy())

	_, err := exec.Execute(context.Background(), sellRequest("10"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
	assert.Len(t, q.calls, 1)
	assert.Empty(t, sub.submitted)
	assert.Empty(t, sleeper.waits)
	assert.Equal(t, []State{StateQuoting, StateFailedFatal}, states.states)
}

func TestExecutor_InvalidRequest(t *testing.T) {
	q := &fakeQuoter{}
	exec, _, _ := newTestExecutor(q, &fakeSubmitter{}, DefaultPolicy())

	req := sellRequest("10")
	req.SlippageBps = -1
	_, err := exec.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, q.calls)
}

func TestExecutor_CancelDuringWait(t *testing.T) {
	sub := &fakeSubmitter{submitErrs: []error{retryableErr(), retryableErr()}}
	exec := NewExecutor(&fakeQuoter{}, sub, Policy{Delay: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	exec.OnState(func(state State, _ int) {
		if state == StateFailedRetryable {
			cancel()
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := exec.Execute(ctx, sellRequest("10"))
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not stop on cancellation")
	}
	assert.Len(t, sub.submitted, 1)
}

func TestExecutor_Deadline(t *testing.T) {
	for _, offset := range []time.Duration{300 * time.Second, 600 * time.Second} {
		sub := &fakeSubmitter{}
		exec, _, _ := newTestExecutor(&fakeQuoter{}, sub, DefaultPolicy())

		req := sellRequest("1")
		req.DeadlineOffset = offset

		before := time.Now()
		_, err := exec.Execute(context.Background(), req)
		require.NoError(t, err)

		require.Len(t, sub.submitted, 1)
		deadline := sub.submitted[0].Deadline
		assert.WithinDuration(t, before.Add(offset), deadline, 3*time.Second)
	}
}

func TestExecutor_DeadlineUsesClock(t *testing.T) {
	sub := &fakeSubmitter{}
	exec, _, _ := newTestExecutor(&fakeQuoter{}, sub, DefaultPolicy())
	fixed := time.Unix(1_700_000_000, 0)
	exec.now = func() time.Time { return fixed }

	_, err := exec.Execute(context.Background(), sellRequest("1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_300), sub.submitted[0].Deadline.Unix())
}

func TestExecutor_ExactOutputOrder(t *testing.T) {
	q := &fakeQuoter{}
	sub := &fakeSubmitter{}
	exec, _, _ := newTestExecutor(q, sub, DefaultPolicy())

	_, err := exec.Execute(context.Background(), buyRequest("200.0"))
	require.NoError(t, err)

	require.Len(t, q.calls, 1)
	assert.True(t, q.calls[0].exactOut)
	assert.Equal(t, units(200, 18).String(), q.calls[0].amount.String())

	order := sub.submitted[0]
	assert.Nil(t, order.AmountIn)
	assert.Equal(t, units(600, 18).String(), order.Value.String())
	assert.Equal(t, MinOutput(units(200, 18), 100).String(), order.MinimumOutput.String())
}

func TestBuildOrder_DoesNotAliasQuote(t *testing.T) {
	quote := &Quote{Amounts: []*big.Int{big.NewInt(30), big.NewInt(10)}}
	amount := big.NewInt(10)

	order := BuildOrder(buyRequest("1"), quote, amount, time.Now())
	order.Value.SetInt64(0)
	assert.Equal(t, int64(30), quote.Input().Int64())
}
