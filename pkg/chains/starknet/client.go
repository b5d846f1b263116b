// Package starknet implements the chain adapter for StarkNet over its
// JSON-RPC interface.
package starknet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/starkbridge/middleware/pkg/bridge"
	"github.com/starkbridge/middleware/pkg/chains"
	"github.com/starkbridge/middleware/pkg/config"
)

// StarkNet execution statuses as reported by starknet_getTransactionReceipt.
const (
	StatusAcceptedOnL2 = "ACCEPTED_ON_L2"
	StatusAcceptedOnL1 = "ACCEPTED_ON_L1"
	StatusRejected     = "REJECTED"
)

// Client is a StarkNet chain adapter backed by JSON-RPC over HTTP.
type Client struct {
	cfg    *config.StarkNetConfig
	http   *resty.Client
	logger *zap.Logger
}

var _ chains.Adapter = (*Client)(nil)

// NewClient creates a StarkNet adapter for the configured RPC endpoint.
func NewClient(cfg *config.StarkNetConfig, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.RPCURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
	}
}

// Chain returns the network this adapter serves.
func (c *Client) Chain() bridge.Chain {
	return bridge.ChainStarkNet
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	var resp rpcResponse
	r, err := c.http.R().
		SetContext(ctx).
		SetBody(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}).
		SetResult(&resp).
		Post("")
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if r.IsError() {
		return fmt.Errorf("%s: http %d", method, r.StatusCode())
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// GetBalance calls balanceOf on the token contract and returns the balance
// in base units as a decimal string.
func (c *Client) GetBalance(ctx context.Context, tokenAddress, userAddress string) (string, error) {
	var result []string
	err := c.call(ctx, "starknet_call", []any{
		map[string]any{
			"contract_address":     tokenAddress,
			"entry_point_selector": balanceOfSelector,
			"calldata":             []string{userAddress},
		},
		"latest",
	}, &result)
	if err != nil {
		return "", &chains.AdapterError{Chain: bridge.ChainStarkNet, Op: "balance", Err: err}
	}
	if len(result) == 0 {
		return "", &chains.AdapterError{Chain: bridge.ChainStarkNet, Op: "balance", Err: fmt.Errorf("empty call result")}
	}

	// Uint256 comes back as (low, high) felts.
	low, ok := new(big.Int).SetString(trimHexPrefix(result[0]), 16)
	if !ok {
		return "", &chains.AdapterError{Chain: bridge.ChainStarkNet, Op: "balance", Err: fmt.Errorf("bad felt %q", result[0])}
	}
	balance := low
	if len(result) > 1 {
		high, ok := new(big.Int).SetString(trimHexPrefix(result[1]), 16)
		if !ok {
			return "", &chains.AdapterError{Chain: bridge.ChainStarkNet, Op: "balance", Err: fmt.Errorf("bad felt %q", result[1])}
		}
		balance = new(big.Int).Add(low, new(big.Int).Lsh(high, 128))
	}
	return balance.String(), nil
}

type invokeResult struct {
	TransactionHash string `json:"transaction_hash"`
}

// Transfer invokes the token contract's transfer entrypoint from the
// configured account and returns the transaction hash.
func (c *Client) Transfer(ctx context.Context, tokenAddress, recipient, amount string) (string, error) {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return "", &chains.AdapterError{Chain: bridge.ChainStarkNet, Op: "transfer", Err: fmt.Errorf("invalid amount %q", amount)}
	}

	// With a bridge contract configured the source-leg funds are locked
	// there; the recipient is credited on the destination chain.
	receiver := recipient
	if c.cfg.BridgeContract != "" {
		receiver = c.cfg.BridgeContract
	}

	low, high := splitUint256(value)
	var result invokeResult
	err := c.call(ctx, "starknet_addInvokeTransaction", []any{
		map[string]any{
			"type":           "INVOKE",
			"sender_address": c.cfg.AccountAddress,
			"calldata": []string{
				tokenAddress,
				transferSelector,
				receiver,
				"0x" + low.Text(16),
				"0x" + high.Text(16),
			},
		},
	}, &result)
	if err != nil {
		return "", &chains.AdapterError{Chain: bridge.ChainStarkNet, Op: "transfer", Err: err}
	}
	if result.TransactionHash == "" {
		return "", &chains.AdapterError{Chain: bridge.ChainStarkNet, Op: "transfer", Err: fmt.Errorf("empty transaction hash")}
	}

	c.logger.Info("Transfer submitted",
		zap.String("chain", "starknet"),
		zap.String("tx_hash", result.TransactionHash),
		zap.String("to", receiver),
		zap.String("beneficiary", recipient),
		zap.String("amount", amount))
	return result.TransactionHash, nil
}

type receiptResult struct {
	FinalityStatus  string `json:"finality_status"`
	ExecutionStatus string `json:"execution_status"`
	BlockNumber     int64  `json:"block_number"`
}

// WaitForFinality polls the transaction receipt with bounded exponential
// backoff until StarkNet reports L2/L1 acceptance or rejection.
func (c *Client) WaitForFinality(ctx context.Context, txHash string) (*chains.Receipt, error) {
	backoff := retry.NewExponential(c.cfg.PollInterval)
	backoff = retry.WithCappedDuration(time.Minute, backoff)
	backoff = retry.WithMaxDuration(c.cfg.MaxPollTime, backoff)

	var receipt receiptResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var r receiptResult
		if err := c.call(ctx, "starknet_getTransactionReceipt", []any{txHash}, &r); err != nil {
			// Receipt not available yet, keep polling.
			return retry.RetryableError(err)
		}
		switch r.FinalityStatus {
		case StatusAcceptedOnL2, StatusAcceptedOnL1, StatusRejected:
			receipt = r
			return nil
		default:
			return retry.RetryableError(fmt.Errorf("transaction %s still %s", txHash, r.FinalityStatus))
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s on starknet", chains.ErrFinalityTimeout, txHash)
	}

	return &chains.Receipt{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber,
		Succeeded:   receipt.FinalityStatus != StatusRejected && receipt.ExecutionStatus != "REVERTED",
		RawStatus:   receipt.FinalityStatus,
	}, nil
}

// Entry point selectors are sn_keccak of the function name, fixed by the
// StarkNet ABI convention.
const (
	balanceOfSelector = "0x2e4263afad30923c891518314c3c95dbe830a16874e8abc5777a9a20b54c76e"
	transferSelector  = "0x83afd3f4caedc6eebf44246fe54e38c95e3179a5ec9ea81740eca5b482d12e"
)

func splitUint256(v *big.Int) (low, high *big.Int) {
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	low = new(big.Int).And(v, mask)
	high = new(big.Int).Rsh(v, 128)
	return low, high
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
