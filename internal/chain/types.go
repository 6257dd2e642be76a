package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TxArgs describes a transaction submitted via eth_sendTransaction. The
// node owns the signing key, as with a development or custodial node. An
// empty To deploys a contract.
type TxArgs struct {
	From  string `json:"from"`
	To    string `json:"to,omitempty"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
	Gas   string `json:"gas,omitempty"`
}

// Receipt is the subset of a transaction receipt the platform consumes.
type Receipt struct {
	TxHash          string `json:"transactionHash"`
	ContractAddress string `json:"contractAddress"`
	Status          string `json:"status"`
	BlockNumber     string `json:"blockNumber"`
}

// Succeeded reports whether the receipt status is success.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == "0x1"
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsHexAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsHexAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// parseHexBig decodes a 0x-prefixed hex quantity.
func parseHexBig(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("empty hex quantity")
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}
