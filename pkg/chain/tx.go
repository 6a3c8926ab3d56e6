package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxInfo summarizes a transaction and its receipt when mined
type TxInfo struct {
	Hash        string  `json:"hash"`
	From        string  `json:"from,omitempty"`
	To          string  `json:"to"`
	Nonce       uint64  `json:"nonce"`
	Value       string  `json:"value"`
	GasPrice    string  `json:"gas_price"`
	GasLimit    uint64  `json:"gas_limit"`
	Pending     bool    `json:"pending"`
	BlockNumber *uint64 `json:"block_number,omitempty"`
	GasUsed     *uint64 `json:"gas_used,omitempty"`
	Success     *bool   `json:"success,omitempty"`
}

// TransactionInfo looks up a transaction and, once mined, its receipt
func (s *Session) TransactionInfo(ctx context.Context, hash common.Hash) (*TxInfo, error) {
	tx, isPending, err := s.Backend.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("transaction %s not found", hash.Hex())
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	info := &TxInfo{
		Hash:     tx.Hash().Hex(),
		Nonce:    tx.Nonce(),
		Value:    tx.Value().String(),
		GasPrice: tx.GasPrice().String(),
		GasLimit: tx.Gas(),
		Pending:  isPending,
	}
	if tx.To() != nil {
		info.To = tx.To().Hex()
	}
	if from, err := types.Sender(types.LatestSignerForChainID(s.ChainID), tx); err == nil {
		info.From = from.Hex()
	}
	if isPending {
		return info, nil
	}

	receipt, err := s.Backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			info.Pending = true
			return info, nil
		}
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}

	block := receipt.BlockNumber.Uint64()
	success := receipt.Status == types.ReceiptStatusSuccessful
	info.BlockNumber = &block
	info.GasUsed = &receipt.GasUsed
	info.Success = &success
	return info, nil
}
