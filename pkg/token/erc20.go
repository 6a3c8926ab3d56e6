package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"dex-swap/pkg/chain"
)

const erc20ABI = `[
 {"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
 {"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
 {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
 {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}
]`

// ABI returns the parsed ERC-20 metadata ABI
func ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("token: bad ABI: %v", err))
	}
	return parsed
}

// Metadata describes an ERC-20 token
type Metadata struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Registry reads ERC-20 metadata and caches it per address.
// Metadata is immutable on-chain so entries never expire.
type Registry struct {
	session *chain.Session
	abi     abi.ABI

	mu    sync.Mutex
	cache map[common.Address]*Metadata
}

// NewRegistry creates a metadata registry on the session's backend
func NewRegistry(session *chain.Session) *Registry {
	return &Registry{
		session: session,
		abi:     ABI(),
		cache:   make(map[common.Address]*Metadata),
	}
}

// Token returns a handle for the ERC-20 at address
func (r *Registry) Token(address common.Address) *Token {
	return &Token{registry: r, address: address}
}

// Lookup loads all metadata for address
func (r *Registry) Lookup(ctx context.Context, address common.Address) (*Metadata, error) {
	r.mu.Lock()
	if md, ok := r.cache[address]; ok {
		r.mu.Unlock()
		return md, nil
	}
	r.mu.Unlock()

	md := &Metadata{Address: address}

	decimals, err := r.call(ctx, address, "decimals")
	if err != nil {
		return nil, err
	}
	var ok bool
	if md.Decimals, ok = decimals.(uint8); !ok {
		return nil, fmt.Errorf("unexpected decimals type %T", decimals)
	}

	// name and symbol are optional in ERC-20
	if v, err := r.call(ctx, address, "name"); err == nil {
		md.Name, _ = v.(string)
	}
	if v, err := r.call(ctx, address, "symbol"); err == nil {
		md.Symbol, _ = v.(string)
	}

	r.mu.Lock()
	r.cache[address] = md
	r.mu.Unlock()
	return md, nil
}

// BalanceOf returns account's balance of the token at address, in base units
func (r *Registry) BalanceOf(ctx context.Context, address, account common.Address) (*big.Int, error) {
	v, err := r.call(ctx, address, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	balance, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", v)
	}
	return balance, nil
}

func (r *Registry) call(ctx context.Context, address common.Address, method string, args ...interface{}) (interface{}, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", method, err)
	}

	raw, err := r.session.Backend.CallContract(ctx, ethereum.CallMsg{To: &address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, address.Hex(), err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s returned no data, is %s a token contract?", method, address.Hex())
	}

	outs, err := r.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return outs[0], nil
}

// Token is a handle on a single ERC-20 contract
type Token struct {
	registry *Registry
	address  common.Address
}

// Address returns the token contract address
func (t *Token) Address() common.Address {
	return t.address
}

// Decimals returns the token's decimals
func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	md, err := t.registry.Lookup(ctx, t.address)
	if err != nil {
		return 0, err
	}
	return md.Decimals, nil
}

// Name returns the token's name, empty if the contract does not expose one
func (t *Token) Name(ctx context.Context) (string, error) {
	md, err := t.registry.Lookup(ctx, t.address)
	if err != nil {
		return "", err
	}
	return md.Name, nil
}

// Symbol returns the token's symbol, empty if the contract does not expose one
func (t *Token) Symbol(ctx context.Context) (string, error) {
	md, err := t.registry.Lookup(ctx, t.address)
	if err != nil {
		return "", err
	}
	return md.Symbol, nil
}

// BalanceOf returns account's balance in base units
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return t.registry.BalanceOf(ctx, t.address, account)
}
