package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNoSigner is returned when a state-changing call is made on a read-only session
var ErrNoSigner = errors.New("no private key configured")

// Backend is the subset of ethclient.Client used by the swap workflow
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	Close()
}

// Session is the per-run chain connection and signing identity.
// It is created once and only read afterwards.
type Session struct {
	Backend Backend
	ChainID *big.Int
	From    common.Address

	key *ecdsa.PrivateKey
}

// Dial connects to the RPC endpoint and derives the signer from privateKeyHex.
// An empty key yields a read-only session.
func Dial(ctx context.Context, rpcURL, privateKeyHex string) (*Session, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	session, err := NewSession(ctx, client, privateKeyHex)
	if err != nil {
		client.Close()
		return nil, err
	}
	return session, nil
}

// NewSession wraps an existing backend
func NewSession(ctx context.Context, backend Backend, privateKeyHex string) (*Session, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	s := &Session{
		Backend: backend,
		ChainID: chainID,
	}

	privateKeyHex = strings.TrimSpace(privateKeyHex)
	if privateKeyHex == "" {
		return s, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	s.key = key
	s.From = crypto.PubkeyToAddress(key.PublicKey)

	return s, nil
}

// CanSign reports whether the session holds a private key
func (s *Session) CanSign() bool {
	return s.key != nil
}

// Sign signs a transaction for the session's chain
func (s *Session) Sign(tx *types.Transaction) (*types.Transaction, error) {
	if s.key == nil {
		return nil, ErrNoSigner
	}
	signed, err := types.SignTx(tx, types.NewEIP155Signer(s.ChainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// NativeBalance returns the signer's native currency balance
func (s *Session) NativeBalance(ctx context.Context) (*big.Int, error) {
	balance, err := s.Backend.BalanceAt(ctx, s.From, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Close closes the client connection
func (s *Session) Close() {
	if s.Backend != nil {
		s.Backend.Close()
	}
}
