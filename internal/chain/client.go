// Package chain provides EVM JSON-RPC interaction for balance reads and the
// contract deployment toolkit.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// erc20BalanceOfSelector is the 4-byte selector of balanceOf(address).
const erc20BalanceOfSelector = "0x70a08231"

// Client is a minimal EVM JSON-RPC client.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	chainID    uint64
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	ChainID uint64
	Timeout time.Duration
}

// NewClient creates a new EVM client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		chainID: cfg.ChainID,
	}, nil
}

// Call makes a JSON-RPC call to the node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// VerifyChainID checks the node's eth_chainId against the configured chain
// id. A zero configured id skips the check.
func (c *Client) VerifyChainID(ctx context.Context) error {
	if c.chainID == 0 {
		return nil
	}
	result, err := c.Call(ctx, "eth_chainId", nil)
	if err != nil {
		return err
	}

	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return err
	}
	v, err := parseHexBig(hex)
	if err != nil {
		return err
	}
	if v.Uint64() != c.chainID {
		return fmt.Errorf("connected to chain %d, expected %d", v.Uint64(), c.chainID)
	}
	return nil
}

// BlockNumber returns the current block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}

	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return 0, err
	}
	v, err := parseHexBig(hex)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// NativeBalance returns the native-coin balance of an address in wei.
func (c *Client) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	if !IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	result, err := c.Call(ctx, "eth_getBalance", []interface{}{address, "latest"})
	if err != nil {
		return nil, err
	}

	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return nil, err
	}
	return parseHexBig(hex)
}

// TokenBalance returns an ERC-20 balance via eth_call on balanceOf(address).
func (c *Client) TokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	if !IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token contract %q", token)
	}
	if !IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}

	data := erc20BalanceOfSelector + padAddress(address)
	result, err := c.Call(ctx, "eth_call", []interface{}{
		map[string]string{"to": token, "data": data},
		"latest",
	})
	if err != nil {
		return nil, err
	}

	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return nil, err
	}
	return parseHexBig(hex)
}

// SendTransaction submits a node-signed transaction and returns its hash.
func (c *Client) SendTransaction(ctx context.Context, tx TxArgs) (string, error) {
	if !IsHexAddress(tx.From) {
		return "", fmt.Errorf("invalid sender %q", tx.From)
	}
	result, err := c.Call(ctx, "eth_sendTransaction", []interface{}{tx})
	if err != nil {
		return "", err
	}

	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// TransactionReceipt returns the receipt for a transaction, or nil while the
// transaction is unmined.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", []interface{}{txHash})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var receipt Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// WaitMined polls for the receipt until the transaction is mined or the
// context ends.
func (c *Client) WaitMined(ctx context.Context, txHash string, interval time.Duration) (*Receipt, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// padAddress left-pads an address to a 32-byte ABI word.
func padAddress(address string) string {
	hex := strings.ToLower(strings.TrimPrefix(address, "0x"))
	return strings.Repeat("0", 64-len(hex)) + hex
}
