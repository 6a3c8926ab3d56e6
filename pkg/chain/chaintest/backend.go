// Package chaintest provides an in-memory chain.Backend for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Well-known development key and its address
const (
	TestKeyHex  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	TestAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// CallHandler answers an eth_call for one method selector
type CallHandler func(msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

// Backend is an in-memory chain.Backend
type Backend struct {
	mu sync.Mutex

	ChainIDValue  *big.Int
	GasPrice      *big.Int
	Nonce         uint64
	Balance       *big.Int
	BlockNumber   uint64
	ReceiptStatus uint64
	SendErr       error
	ReceiptErr    error

	Calls      []ethereum.CallMsg
	CallBlocks []*big.Int
	Sent       []*types.Transaction
	Closed     bool

	handlers map[[4]byte]CallHandler
}

// New returns a BSC-like backend where every sent transaction succeeds
func New() *Backend {
	return &Backend{
		ChainIDValue:  big.NewInt(56),
		GasPrice:      big.NewInt(3_000_000_000),
		Balance:       new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
		BlockNumber:   1000,
		ReceiptStatus: types.ReceiptStatusSuccessful,
		handlers:      make(map[[4]byte]CallHandler),
	}
}

// Handle registers a handler for calls to method
func (b *Backend) Handle(method abi.Method, h CallHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var id [4]byte
	copy(id[:], method.ID)
	b.handlers[id] = h
}

// Return registers a handler that always returns the packed outputs of method
func (b *Backend) Return(method abi.Method, values ...interface{}) {
	packed, err := method.Outputs.Pack(values...)
	b.Handle(method, func(ethereum.CallMsg, *big.Int) ([]byte, error) {
		return packed, err
	})
}

// Revert registers a handler that reverts every call to method with reason
func (b *Backend) Revert(method abi.Method, reason string) {
	b.Handle(method, func(ethereum.CallMsg, *big.Int) ([]byte, error) {
		return nil, RevertError(reason)
	})
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.ChainIDValue), nil
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	b.Calls = append(b.Calls, msg)
	b.CallBlocks = append(b.CallBlocks, blockNumber)
	var id [4]byte
	if len(msg.Data) >= 4 {
		copy(id[:], msg.Data[:4])
	}
	h, ok := b.handlers[id]
	b.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return h(msg, blockNumber)
}

func (b *Backend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *Backend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return new(big.Int).Set(b.Balance), nil
}

func (b *Backend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Nonce, nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		return b.SendErr
	}
	b.Sent = append(b.Sent, tx)
	b.Nonce++
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ReceiptErr != nil {
		return nil, b.ReceiptErr
	}
	for _, tx := range b.Sent {
		if tx.Hash() == txHash {
			return &types.Receipt{
				Status:      b.ReceiptStatus,
				TxHash:      txHash,
				BlockNumber: new(big.Int).SetUint64(b.BlockNumber),
				GasUsed:     120_000,
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (b *Backend) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.Sent {
		if tx.Hash() == hash {
			return tx, false, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
}

// revertError mimics the JSON-RPC error geth returns for a reverted call
type revertError struct {
	reason string
	data   string
}

func (e *revertError) Error() string {
	if e.reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.reason
}

func (e *revertError) ErrorCode() int { return 3 }

func (e *revertError) ErrorData() interface{} { return e.data }

// RevertError builds an RPC error carrying Error(string) revert data
func RevertError(reason string) error {
	stringType, _ := abi.NewType("string", "", nil)
	payload, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	// Error(string) selector
	data := append([]byte{0x08, 0xc3, 0x79, 0xa0}, payload...)
	return &revertError{reason: reason, data: hexutil.Encode(data)}
}
