package trade

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"dex-swap/pkg/metrics"
)

// State is a step of the quote -> submit workflow
type State string

const (
	StateQuoting         State = "quoting"
	StateSimulating      State = "simulating"
	StateSubmitting      State = "submitting"
	StateConfirmed       State = "confirmed"
	StateFailedRetryable State = "failed_retryable"
	StateFailedFatal     State = "failed_fatal"
)

// Quoter fetches router quotes
type Quoter interface {
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*Quote, error)
	AmountsIn(ctx context.Context, amountOut *big.Int, path []common.Address) (*Quote, error)
}

// Submitter dry-runs and sends swap orders. Failures are returned as *SwapError.
type Submitter interface {
	Simulate(ctx context.Context, order *SwapOrder) error
	Submit(ctx context.Context, order *SwapOrder) (*Receipt, error)
}

// Result is the outcome of a confirmed trade
type Result struct {
	Quote    *Quote
	Order    *SwapOrder
	Receipt  *Receipt
	Attempts int
}

// Executor runs a trade through quoting, simulation and submission,
// repeating the whole cycle on retryable failures
type Executor struct {
	quoter    Quoter
	submitter Submitter
	policy    Policy
	simulate  bool
	log       *zap.Logger
	onState   func(state State, attempt int)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates a new executor instance
func NewExecutor(quoter Quoter, submitter Submitter, policy Policy, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		quoter:    quoter,
		submitter: submitter,
		policy:    policy,
		simulate:  true,
		log:       log,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// SetSimulate toggles the dry-run before each submission
func (e *Executor) SetSimulate(simulate bool) {
	e.simulate = simulate
}

// OnState registers a hook called on every state transition
func (e *Executor) OnState(fn func(state State, attempt int)) {
	e.onState = fn
}

// Execute runs req until it is confirmed, fails fatally, or the policy is exhausted
func (e *Executor) Execute(ctx context.Context, req TradeRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trade request: %w", err)
	}
	amount, _ := req.BaseAmount()

	log := e.log.With(
		zap.String("kind", string(req.Kind)),
		zap.String("sell", req.SellToken.Hex()),
		zap.String("buy", req.BuyToken.Hex()),
		zap.String("amount", req.Amount.String()),
	)

	for attempt := 1; ; attempt++ {
		res, err := e.attempt(ctx, req, amount, attempt, log)
		if err == nil {
			res.Attempts = attempt
			e.transition(StateConfirmed, attempt)
			metrics.SwapAttempts.WithLabelValues(string(req.Kind), metrics.OutcomeConfirmed).Inc()
			log.Info("swap confirmed",
				zap.Int("attempt", attempt),
				zap.String("tx", res.Receipt.TxHash.Hex()),
				zap.Uint64("block", res.Receipt.BlockNumber),
				zap.Uint64("gas_used", res.Receipt.GasUsed),
			)
			return res, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !Retryable(err) {
			e.transition(StateFailedFatal, attempt)
			metrics.SwapAttempts.WithLabelValues(string(req.Kind), metrics.OutcomeFatal).Inc()
			log.Error("swap failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}

		e.transition(StateFailedRetryable, attempt)
		metrics.SwapAttempts.WithLabelValues(string(req.Kind), metrics.OutcomeRetryable).Inc()

		if e.policy.Exhausted(attempt) {
			log.Error("swap retries exhausted", zap.Int("attempts", attempt), zap.Error(err))
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}

		wait := e.policy.Wait(attempt)
		log.Warn("retryable swap failure, waiting before retry",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		metrics.Retries.Inc()
		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (e *Executor) attempt(ctx context.Context, req TradeRequest, amount *big.Int, attempt int, log *zap.Logger) (*Result, error) {
	e.transition(StateQuoting, attempt)
	quote, err := e.quote(ctx, req, amount)
	if err != nil {
		return nil, err
	}

	order := BuildOrder(req, quote, amount, e.now())
	log.Debug("order built",
		zap.Int("attempt", attempt),
		zap.String("quote_in", quote.Input().String()),
		zap.String("quote_out", quote.Output().String()),
		zap.String("min_out", order.MinimumOutput.String()),
		zap.Time("deadline", order.Deadline),
	)

	if e.simulate {
		e.transition(StateSimulating, attempt)
		if err := e.submitter.Simulate(ctx, order); err != nil {
			return nil, err
		}
	}

	e.transition(StateSubmitting, attempt)
	receipt, err := e.submitter.Submit(ctx, order)
	if err != nil {
		return nil, err
	}

	return &Result{Quote: quote, Order: order, Receipt: receipt}, nil
}

func (e *Executor) quote(ctx context.Context, req TradeRequest, amount *big.Int) (*Quote, error) {
	start := time.Now()
	defer func() { metrics.QuoteLatency.Observe(time.Since(start).Seconds()) }()

	var (
		q   *Quote
		err error
	)
	if req.Kind.ExactOutput() {
		q, err = e.quoter.AmountsIn(ctx, amount, req.Path())
	} else {
		q, err = e.quoter.AmountsOut(ctx, amount, req.Path())
	}
	if err != nil {
		metrics.QuoteErrors.Inc()
		return nil, err
	}
	return q, nil
}

func (e *Executor) transition(state State, attempt int) {
	if e.onState != nil {
		e.onState(state, attempt)
	}
}

// BuildOrder derives the router call from a quote. For exact-output swaps the
// slippage cut applies to the requested output and the quoted input is sent as value.
func BuildOrder(req TradeRequest, quote *Quote, amount *big.Int, now time.Time) *SwapOrder {
	order := &SwapOrder{
		Request:       req,
		Path:          req.Path(),
		MinimumOutput: MinOutput(quote.Output(), req.SlippageBps),
		Value:         new(big.Int),
		Deadline:      now.Add(req.DeadlineOffset).Truncate(time.Second),
	}
	if req.Kind.ExactOutput() {
		order.Value = new(big.Int).Set(quote.Input())
	} else {
		order.AmountIn = new(big.Int).Set(amount)
	}
	return order
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
