package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"dex-swap/pkg/chain"
	"dex-swap/pkg/metrics"
	"dex-swap/pkg/trade"
)

// DefaultGasLimit is the gas ceiling attached to every swap
const DefaultGasLimit uint64 = 1_000_000

var errReverted = errors.New("transaction reverted")

// Submitter signs, sends and confirms router swaps for the session's account
type Submitter struct {
	router     *Router
	session    *chain.Session
	gasLimit   uint64
	gasPrice   *big.Int // Fixed gas price; nil uses the node's suggestion
	classifier *Classifier
	log        *zap.Logger

	waitMined func(ctx context.Context, b bind.DeployBackend, tx *types.Transaction) (*types.Receipt, error)
}

// NewSubmitter creates a submitter; a zero gasLimit uses DefaultGasLimit
func NewSubmitter(router *Router, gasLimit uint64, classifier *Classifier, log *zap.Logger) *Submitter {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{
		router:     router,
		session:    router.session,
		gasLimit:   gasLimit,
		classifier: classifier,
		log:        log,
		waitMined:  bind.WaitMined,
	}
}

// SetGasPrice pins the gas price instead of asking the node
func (s *Submitter) SetGasPrice(gasPrice *big.Int) {
	s.gasPrice = gasPrice
}

// Simulate dry-runs the order with eth_call against the latest block
func (s *Submitter) Simulate(ctx context.Context, order *trade.SwapOrder) error {
	msg, err := s.callMsg(order)
	if err != nil {
		return s.classifier.Classify(trade.StateSimulating, common.Hash{}, err)
	}

	if _, err := s.session.Backend.CallContract(ctx, msg, nil); err != nil {
		return s.classifier.Classify(trade.StateSimulating, common.Hash{}, err)
	}
	return nil
}

// Submit sends the order and blocks until it is mined
func (s *Submitter) Submit(ctx context.Context, order *trade.SwapOrder) (*trade.Receipt, error) {
	if !s.session.CanSign() {
		return nil, s.classifier.Classify(trade.StateSubmitting, common.Hash{}, chain.ErrNoSigner)
	}

	msg, err := s.callMsg(order)
	if err != nil {
		return nil, s.classifier.Classify(trade.StateSubmitting, common.Hash{}, err)
	}

	signed, err := s.buildTx(ctx, msg)
	if err != nil {
		return nil, s.classifier.Classify(trade.StateSubmitting, common.Hash{}, err)
	}

	if err := s.session.Backend.SendTransaction(ctx, signed); err != nil {
		return nil, s.classifier.Classify(trade.StateSubmitting, common.Hash{}, fmt.Errorf("failed to send transaction: %w", err))
	}
	s.log.Info("swap transaction sent",
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", signed.Nonce()),
		zap.Uint64("gas_limit", signed.Gas()),
		zap.String("gas_price", signed.GasPrice().String()),
	)

	start := time.Now()
	receipt, err := s.waitMined(ctx, s.session.Backend, signed)
	if err != nil {
		return nil, s.classifier.Classify(trade.StateSubmitting, signed.Hash(), fmt.Errorf("failed waiting for confirmation: %w", err))
	}
	metrics.ConfirmLatency.Observe(time.Since(start).Seconds())

	result := &trade.Receipt{
		TxHash:      receipt.TxHash,
		Status:      trade.ReceiptConfirmed,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return result, nil
	}

	return nil, s.classifier.Classify(trade.StateSubmitting, receipt.TxHash, s.replay(ctx, msg, receipt.BlockNumber))
}

// replay re-runs a mined, reverted call at its block to recover the revert reason
func (s *Submitter) replay(ctx context.Context, msg ethereum.CallMsg, block *big.Int) error {
	_, err := s.session.Backend.CallContract(ctx, msg, block)
	if err == nil {
		return errReverted
	}
	if _, ok := chain.RevertReason(err); ok {
		return err
	}
	return fmt.Errorf("%w (reason unavailable: %v)", errReverted, err)
}

func (s *Submitter) callMsg(order *trade.SwapOrder) (ethereum.CallMsg, error) {
	data, err := s.router.PackSwap(order, s.session.From)
	if err != nil {
		return ethereum.CallMsg{}, err
	}

	value := order.Value
	if value == nil {
		value = new(big.Int)
	}
	to := s.router.Address()
	return ethereum.CallMsg{
		From:  s.session.From,
		To:    &to,
		Gas:   s.gasLimit,
		Value: value,
		Data:  data,
	}, nil
}

func (s *Submitter) buildTx(ctx context.Context, msg ethereum.CallMsg) (*types.Transaction, error) {
	nonce, err := s.session.Backend.PendingNonceAt(ctx, s.session.From)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice := s.gasPrice
	if gasPrice == nil {
		gasPrice, err = s.session.Backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       msg.To,
		Value:    msg.Value,
		Gas:      s.gasLimit,
		GasPrice: gasPrice,
		Data:     msg.Data,
	})
	return s.session.Sign(tx)
}
