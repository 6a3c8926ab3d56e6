package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dex-swap/pkg/metrics"
)

// SequenceResult holds the legs of a buy-then-sell run
type SequenceResult struct {
	Buy      *Result
	Sell     *Result
	Fallback bool // Sell holds the fallback leg
	SellErr  error
}

// Sequencer buys a token with native currency, waits, then sells it back.
// A failed sell leg is followed by exactly one sell of FallbackAmount.
type Sequencer struct {
	exec           *Executor
	fallbackAmount decimal.Decimal
	legDelay       time.Duration
	log            *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewSequencer creates a new buy-then-sell sequencer
func NewSequencer(exec *Executor, fallbackAmount decimal.Decimal, legDelay time.Duration, log *zap.Logger) *Sequencer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sequencer{
		exec:           exec,
		fallbackAmount: fallbackAmount,
		legDelay:       legDelay,
		log:            log,
		sleep:          sleepContext,
	}
}

// Run executes buy, then sell. The fallback reuses sell with FallbackAmount and a fresh quote.
func (s *Sequencer) Run(ctx context.Context, buy, sell TradeRequest) (*SequenceResult, error) {
	if !buy.Kind.ExactOutput() {
		return nil, fmt.Errorf("buy leg must be an exact-output swap, got %s", buy.Kind)
	}
	if sell.Kind.ExactOutput() {
		return nil, fmt.Errorf("sell leg must be an exact-input swap, got %s", sell.Kind)
	}

	result := &SequenceResult{}

	s.log.Info("buy leg starting", zap.String("amount", buy.Amount.String()))
	buyRes, err := s.exec.Execute(ctx, buy)
	if err != nil {
		return result, fmt.Errorf("buy leg: %w", err)
	}
	result.Buy = buyRes
	s.log.Info("buy leg confirmed", zap.String("tx", buyRes.Receipt.TxHash.Hex()))

	if err := s.sleep(ctx, s.legDelay); err != nil {
		return result, err
	}

	s.log.Info("sell leg starting", zap.String("amount", sell.Amount.String()))
	sellRes, err := s.exec.Execute(ctx, sell)
	if err == nil {
		result.Sell = sellRes
		s.log.Info("sell leg confirmed", zap.String("tx", sellRes.Receipt.TxHash.Hex()))
		return result, nil
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	result.SellErr = err
	s.log.Warn("sell leg failed, trying fallback amount",
		zap.String("fallback_amount", s.fallbackAmount.String()),
		zap.Error(err),
	)
	metrics.Fallbacks.Inc()

	fallbackRes, fbErr := s.exec.Execute(ctx, sell.WithAmount(s.fallbackAmount))
	if fbErr != nil {
		return result, fmt.Errorf("%w: sell leg: %v; fallback: %w", ErrFallbackExhausted, err, fbErr)
	}
	result.Sell = fallbackRes
	result.Fallback = true
	s.log.Info("fallback sell confirmed", zap.String("tx", fallbackRes.Receipt.TxHash.Hex()))

	return result, nil
}
