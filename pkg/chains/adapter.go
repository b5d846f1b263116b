// Package chains defines the capability interface every chain adapter
// implements, so the bridge lifecycle stays chain-agnostic.
package chains

import (
	"context"
	"errors"
	"fmt"

	"github.com/starkbridge/middleware/pkg/bridge"
)

// ErrFinalityTimeout is returned by WaitForFinality when the bounded retry
// budget is exhausted before the chain reports a terminal status.
var ErrFinalityTimeout = errors.New("finality not observed within retry budget")

// AdapterError wraps a chain submission failure with the chain it came from.
type AdapterError struct {
	Chain bridge.Chain
	Op    string
	Err   error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter: %s: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Receipt is the finality result for a submitted transfer.
type Receipt struct {
	TxHash      string
	BlockNumber int64
	// Succeeded is false when the chain accepted then rejected the transfer.
	Succeeded bool
	RawStatus string
}

// Adapter is the uniform capability interface over one chain.
//
// Transfer must fail with *AdapterError on submission failure, never
// swallow it. WaitForFinality must bound its polling and fail with
// ErrFinalityTimeout rather than hang.
type Adapter interface {
	Chain() bridge.Chain
	GetBalance(ctx context.Context, tokenAddress, userAddress string) (string, error)
	Transfer(ctx context.Context, tokenAddress, recipient, amount string) (string, error)
	WaitForFinality(ctx context.Context, txHash string) (*Receipt, error)
}

// Registry resolves the adapter for a source chain.
type Registry struct {
	adapters map[bridge.Chain]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[bridge.Chain]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Chain()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for chain, or an error for unsupported chains.
func (r *Registry) Get(chain bridge.Chain) (Adapter, error) {
	a, ok := r.adapters[chain]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for chain %q", chain)
	}
	return a, nil
}
