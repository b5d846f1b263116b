// Package bridge holds the domain model for cross-chain bridge transactions.
package bridge

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chain identifies a supported network.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainStarkNet Chain = "starknet"
	ChainPolygon  Chain = "polygon"
	ChainArbitrum Chain = "arbitrum"
)

// Chains lists every network the bridge can move tokens between.
var Chains = []Chain{ChainEthereum, ChainStarkNet, ChainPolygon, ChainArbitrum}

// Valid reports whether c is a supported chain.
func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainStarkNet, ChainPolygon, ChainArbitrum:
		return true
	}
	return false
}

// IsEVM reports whether c belongs to the EVM chain family.
// StarkNet is the only non-EVM network the bridge supports.
func (c Chain) IsEVM() bool {
	return c != ChainStarkNet
}

// Status represents the current state of a bridge transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether the edge s -> next exists in the
// lifecycle state machine. Terminal states absorb.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusConfirmed || next == StatusFailed
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Fees is the structured fee breakdown embedded into a transaction at
// creation time. All monetary values are decimal strings in token base
// units; floats would lose precision at 18 decimals.
type Fees struct {
	NetworkFee string `json:"networkFee"`
	BridgeFee  string `json:"bridgeFee"`
	TotalFee   string `json:"totalFee"`
	GasPrice   string `json:"gasPrice"`
	GasLimit   string `json:"gasLimit"`
}

// Transaction is the central bridge entity. It is created by the lifecycle
// service and mutated only through guarded store transitions.
type Transaction struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	FromChain     Chain      `json:"fromChain"`
	ToChain       Chain      `json:"toChain"`
	TokenAddress  string     `json:"tokenAddress"`
	TokenSymbol   string     `json:"tokenSymbol"`
	Amount        string     `json:"amount"`
	Slippage      float64    `json:"slippage"`
	Status        Status     `json:"status"`
	TxHash        string     `json:"txHash,omitempty"`
	Fees          Fees       `json:"fees"`
	EstimatedTime int        `json:"estimatedTime"`
	ActualTime    *int64     `json:"actualTime,omitempty"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// CreateRequest is a validated client request to open a bridge transaction.
type CreateRequest struct {
	FromChain    Chain   `json:"fromChain" validate:"required"`
	ToChain      Chain   `json:"toChain" validate:"required"`
	TokenAddress string  `json:"tokenAddress" validate:"required"`
	Amount       string  `json:"amount" validate:"required"`
	Slippage     float64 `json:"slippage"`
}

// EstimateRequest asks for bridge terms without persisting anything.
type EstimateRequest struct {
	FromChain Chain  `json:"fromChain" validate:"required"`
	ToChain   Chain  `json:"toChain" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

// Estimate is the ephemeral result of a fee/time estimation. It is embedded
// into a Transaction at creation and never cached by the lifecycle service.
type Estimate struct {
	Fees          Fees `json:"fees"`
	EstimatedTime int  `json:"estimatedTime"`
}

// Page is a paginated transaction listing.
type Page struct {
	Data    []*Transaction `json:"data"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	HasNext bool           `json:"hasNext"`
	HasPrev bool           `json:"hasPrev"`
}

// Stats is an aggregate summary over all bridge transactions.
type Stats struct {
	TotalVolume       string  `json:"totalVolume"`
	TotalTransactions int     `json:"totalTransactions"`
	SuccessRate       float64 `json:"successRate"`
	AvgActualTime     float64 `json:"avgActualTime"`
}

const (
	// DefaultSlippage is applied when the client omits slippage.
	DefaultSlippage = 2.0
	MinSlippage     = 0.1
	MaxSlippage     = 50.0
)

// PositiveAmount reports whether amount parses as a positive decimal.
func PositiveAmount(amount string) bool {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return false
	}
	return d.IsPositive()
}
