package chain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const revertPrefix = "execution reverted"

// RevertReason extracts the revert reason from an RPC error.
// ok is false when err does not describe a revert at all.
func RevertReason(err error) (reason string, ok bool) {
	if err == nil {
		return "", false
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, isString := dataErr.ErrorData().(string); isString {
			if raw, decErr := hexutil.Decode(data); decErr == nil {
				if unpacked, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return unpacked, true
				}
			}
		}
	}

	msg := err.Error()
	i := strings.Index(msg, revertPrefix)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimSpace(msg[i+len(revertPrefix):])
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
	return rest, true
}
