// JSON-RPC 2.0 envelope plus the hex/decimal quantity conventions the spec
// requires: the server accepts both hex (0x-prefixed) and decimal-string
// integers on the way in, and always emits hex on the way out.
package rpc

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"anvilzksync/core"
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

func errResponse(id interface{}, kind core.Kind, msg string) rpcResponse {
	code := -32000
	switch kind {
	case core.KindValidation:
		code = -32602
	case core.KindRevert:
		code = 3
	case core.KindForkUnavailable:
		code = -32001
	case core.KindInternal:
		code = -32603
	}
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}

func okResponse(id interface{}, result interface{}) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

// hexUint64 renders v as a 0x-prefixed hex quantity.
func hexUint64(v uint64) string { return fmt.Sprintf("0x%x", v) }

// hexAmount renders amt as a 0x-prefixed hex quantity, treating nil as zero.
func hexAmount(amt *core.Amount) string {
	if amt == nil {
		return "0x0"
	}
	return amt.Hex()
}

func hexBytes(b []byte) string { return "0x" + hex.EncodeToString(b) }

// parseQuantity accepts a hex string ("0x..."), a decimal string, or a
// JSON number and returns its uint64 value.
func parseQuantity(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case float64:
		return uint64(t), nil
	case string:
		s := t
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			return strconv.ParseUint(s[2:], 16, 64)
		}
		return strconv.ParseUint(s, 10, 64)
	default:
		return 0, fmt.Errorf("cannot parse quantity from %T", v)
	}
}

func parseAmount(v interface{}) (*core.Amount, error) {
	switch t := v.(type) {
	case string:
		if strings.HasPrefix(t, "0x") || strings.HasPrefix(t, "0X") {
			return uint256.FromHex(t)
		}
		amt, err := uint256.FromDecimal(t)
		return amt, err
	case float64:
		return uint256.NewInt(uint64(t)), nil
	default:
		return nil, fmt.Errorf("cannot parse amount from %T", v)
	}
}

func parseAddress(v interface{}) (core.Address, error) {
	s, ok := v.(string)
	if !ok {
		return core.Address{}, fmt.Errorf("expected address string, got %T", v)
	}
	return core.ParseAddress(s)
}

func parseHash(v interface{}) (core.Hash, error) {
	s, ok := v.(string)
	if !ok {
		return core.Hash{}, fmt.Errorf("expected hash string, got %T", v)
	}
	return core.ParseHash(s)
}

func parseBytes(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected hex-string bytes, got %T", v)
	}
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func paramAt(params []interface{}, i int) interface{} {
	if i < 0 || i >= len(params) {
		return nil
	}
	return params[i]
}
