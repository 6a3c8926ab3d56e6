package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"dex-swap/pkg/chain"
	"dex-swap/pkg/chain/chaintest"
	"dex-swap/pkg/router"
	"dex-swap/pkg/token"
)

const (
	wbnbHex  = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	metalHex = "0x8995f63d98aADDaC79afC92025431b0f50633DDA"
)

// fakeChain is a backend answering token metadata and constant-rate router quotes
func fakeChain(t *testing.T) *chaintest.Backend {
	t.Helper()
	backend := chaintest.New()

	erc20 := token.ABI().Methods
	backend.Return(erc20["decimals"], uint8(18))
	backend.Return(erc20["name"], "Test Token")
	backend.Return(erc20["symbol"], "TEST")
	backend.Return(erc20["balanceOf"], big.NewInt(0).Mul(big.NewInt(42), big.NewInt(1e18)))

	methods := router.ABI().Methods
	backend.Handle(methods["getAmountsOut"], func(msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		args, err := methods["getAmountsOut"].Inputs.Unpack(msg.Data[4:])
		require.NoError(t, err)
		in := args[0].(*big.Int)
		path := args[1].([]common.Address)
		amounts := []*big.Int{in}
		for i := 1; i < len(path); i++ {
			amounts = append(amounts, new(big.Int).Div(amounts[i-1], big.NewInt(2)))
		}
		return methods["getAmountsOut"].Outputs.Pack(amounts)
	})
	backend.Handle(methods["getAmountsIn"], func(msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		args, err := methods["getAmountsIn"].Inputs.Unpack(msg.Data[4:])
		require.NoError(t, err)
		out := args[0].(*big.Int)
		return methods["getAmountsIn"].Outputs.Pack([]*big.Int{new(big.Int).Mul(out, big.NewInt(3)), out})
	})
	for _, name := range []string{"swapETHForExactTokens", "swapExactTokensForETH"} {
		backend.Return(methods[name], []*big.Int{big.NewInt(1), big.NewInt(1)})
	}
	backend.Return(methods["swapExactTokensForETHSupportingFeeOnTransferTokens"])

	return backend
}

var dialMu sync.Mutex

// useBackend routes every dial to backend for the duration of the test
func useBackend(t *testing.T, backend *chaintest.Backend) {
	t.Helper()
	dialMu.Lock()
	orig := dial
	dial = func(ctx context.Context, _ string, key string) (*chain.Session, error) {
		return chain.NewSession(ctx, backend, key)
	}
	t.Cleanup(func() {
		dial = orig
		dialMu.Unlock()
	})
}

func isolateEnv(t *testing.T, withKey bool) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	if withKey {
		t.Setenv("PRIVATE_KEY", chaintest.TestKeyHex)
	} else {
		t.Setenv("PRIVATE_KEY", "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeJSON(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}
