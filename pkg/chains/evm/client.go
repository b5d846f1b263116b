// Package evm implements the chain adapter for EVM-family networks
// (Ethereum, Polygon, Arbitrum). One client serves all three; the chain
// identity and RPC endpoint come from configuration.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/starkbridge/middleware/pkg/bridge"
	"github.com/starkbridge/middleware/pkg/chains"
	"github.com/starkbridge/middleware/pkg/config"
)

const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// Client is an EVM chain adapter backed by go-ethereum's ethclient.
type Client struct {
	chain      bridge.Chain
	cfg        *config.EVMChainConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	erc20      abi.ABI
	logger     *zap.Logger
}

var _ chains.Adapter = (*Client)(nil)

// NewClient connects to the configured RPC endpoint and loads the
// operator key used to submit bridge transfers.
func NewClient(chain bridge.Chain, cfg *config.EVMChainConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", chain, err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}

	logger.Info("Connected to EVM chain",
		zap.String("chain", string(chain)),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("operator", address.Hex()))

	return &Client{
		chain:      chain,
		cfg:        cfg,
		client:     client,
		privateKey: privateKey,
		address:    address,
		erc20:      parsed,
		logger:     logger,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.client.Close()
}

// Chain returns the network this adapter serves.
func (c *Client) Chain() bridge.Chain {
	return c.chain
}

// GetBalance returns the user's balance in base units as a decimal string.
// The zero token address means the native asset.
func (c *Client) GetBalance(ctx context.Context, tokenAddress, userAddress string) (string, error) {
	user := common.HexToAddress(userAddress)

	if isNativeToken(tokenAddress) {
		balance, err := c.client.BalanceAt(ctx, user, nil)
		if err != nil {
			return "", &chains.AdapterError{Chain: c.chain, Op: "balance", Err: err}
		}
		return balance.String(), nil
	}

	data, err := c.erc20.Pack("balanceOf", user)
	if err != nil {
		return "", &chains.AdapterError{Chain: c.chain, Op: "balance", Err: err}
	}
	token := common.HexToAddress(tokenAddress)
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return "", &chains.AdapterError{Chain: c.chain, Op: "balance", Err: err}
	}
	results, err := c.erc20.Unpack("balanceOf", out)
	if err != nil {
		return "", &chains.AdapterError{Chain: c.chain, Op: "balance", Err: err}
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return "", &chains.AdapterError{Chain: c.chain, Op: "balance", Err: fmt.Errorf("unexpected balanceOf result %T", results[0])}
	}
	return balance.String(), nil
}

// Transfer submits a token transfer and returns the transaction hash.
func (c *Client) Transfer(ctx context.Context, tokenAddress, recipient, amount string) (string, error) {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return "", &chains.AdapterError{Chain: c.chain, Op: "transfer", Err: fmt.Errorf("invalid amount %q", amount)}
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", &chains.AdapterError{Chain: c.chain, Op: "transfer", Err: err}
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", &chains.AdapterError{Chain: c.chain, Op: "transfer", Err: err}
	}

	var tx *types.Transaction
	to := c.lockTarget(recipient)
	if isNativeToken(tokenAddress) {
		tx = types.NewTransaction(nonce, to, value, c.cfg.GasLimit, gasPrice, nil)
	} else {
		data, packErr := c.erc20.Pack("transfer", to, value)
		if packErr != nil {
			return "", &chains.AdapterError{Chain: c.chain, Op: "transfer", Err: packErr}
		}
		token := common.HexToAddress(tokenAddress)
		tx = types.NewTransaction(nonce, token, big.NewInt(0), c.cfg.GasLimit, gasPrice, data)
	}

	signer := types.LatestSignerForChainID(big.NewInt(c.cfg.ChainID))
	signed, err := types.SignTx(tx, signer, c.privateKey)
	if err != nil {
		return "", &chains.AdapterError{Chain: c.chain, Op: "transfer", Err: err}
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", &chains.AdapterError{Chain: c.chain, Op: "transfer", Err: err}
	}

	hash := signed.Hash().Hex()
	c.logger.Info("Transfer submitted",
		zap.String("chain", string(c.chain)),
		zap.String("tx_hash", hash),
		zap.String("to", to.Hex()),
		zap.String("beneficiary", recipient),
		zap.String("amount", amount))
	return hash, nil
}

// lockTarget resolves where source-leg funds move. With a bridge contract
// configured they are locked there; the recipient is credited on the
// destination chain. Without one the transfer pays the recipient directly.
func (c *Client) lockTarget(recipient string) common.Address {
	if c.cfg.BridgeContract != "" {
		return common.HexToAddress(c.cfg.BridgeContract)
	}
	return common.HexToAddress(recipient)
}

// WaitForFinality polls for the transaction receipt with bounded
// exponential backoff. It never waits past the configured max poll time.
func (c *Client) WaitForFinality(ctx context.Context, txHash string) (*chains.Receipt, error) {
	hash := common.HexToHash(txHash)

	backoff := retry.NewExponential(c.cfg.PollInterval)
	backoff = retry.WithCappedDuration(time.Minute, backoff)
	backoff = retry.WithMaxDuration(c.cfg.MaxPollTime, backoff)

	var receipt *types.Receipt
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := c.client.TransactionReceipt(ctx, hash)
		if err != nil {
			// Not mined yet, keep polling.
			return retry.RetryableError(err)
		}
		receipt = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s on %s", chains.ErrFinalityTimeout, txHash, c.chain)
	}

	return &chains.Receipt{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Int64(),
		Succeeded:   receipt.Status == types.ReceiptStatusSuccessful,
		RawStatus:   fmt.Sprintf("%d", receipt.Status),
	}, nil
}

func isNativeToken(tokenAddress string) bool {
	return tokenAddress == "" || common.HexToAddress(tokenAddress) == (common.Address{})
}
