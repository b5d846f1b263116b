// Package estimator computes bridge fee and duration estimates.
//
// Estimation is deterministic: identical inputs always produce identical
// outputs. All fee arithmetic runs on arbitrary-precision decimals so
// amounts in 18-decimal base units never pick up binary rounding drift.
package estimator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/starkbridge/middleware/pkg/bridge"
)

const (
	// bridgeFeeBps is the bridge fee in basis points (0.3%).
	bridgeFeeBps = 30

	// networkFee is a flat reference value; real fee-market estimation is
	// an external collaborator concern.
	networkFee = "0.001"

	gasPrice = "20000000000" // 20 gwei
	gasLimit = "150000"
)

// transit times in seconds, keyed by chain pair
var transitTimes = map[[2]bridge.Chain]int{
	{bridge.ChainEthereum, bridge.ChainStarkNet}: 900,
	{bridge.ChainStarkNet, bridge.ChainEthereum}: 1800,
}

const defaultTransitTime = 600

var bridgeFeeRate = decimal.New(bridgeFeeBps, -4)

// Estimator produces bridge terms for a chain pair and amount.
type Estimator struct{}

// New creates an Estimator.
func New() *Estimator {
	return &Estimator{}
}

// EstimateFees returns the fee breakdown for bridging amount from one chain
// to another. amount must be a positive decimal string.
func (e *Estimator) EstimateFees(fromChain, toChain bridge.Chain, amount string) (bridge.Fees, error) {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return bridge.Fees{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if !amt.IsPositive() {
		return bridge.Fees{}, fmt.Errorf("amount must be positive, got %q", amount)
	}

	network := decimal.RequireFromString(networkFee)
	bridgeFee := amt.Mul(bridgeFeeRate)
	total := network.Add(bridgeFee)

	return bridge.Fees{
		NetworkFee: network.String(),
		BridgeFee:  bridgeFee.String(),
		TotalFee:   total.String(),
		GasPrice:   gasPrice,
		GasLimit:   gasLimit,
	}, nil
}

// EstimateTime returns the expected transit duration in seconds for the
// given chain pair, falling back to a default for unlisted pairs.
func (e *Estimator) EstimateTime(fromChain, toChain bridge.Chain) int {
	if secs, ok := transitTimes[[2]bridge.Chain{fromChain, toChain}]; ok {
		return secs
	}
	return defaultTransitTime
}

// Estimate combines fee and time estimation into a single result.
func (e *Estimator) Estimate(fromChain, toChain bridge.Chain, amount string) (*bridge.Estimate, error) {
	fees, err := e.EstimateFees(fromChain, toChain, amount)
	if err != nil {
		return nil, err
	}
	return &bridge.Estimate{
		Fees:          fees,
		EstimatedTime: e.EstimateTime(fromChain, toChain),
	}, nil
}
