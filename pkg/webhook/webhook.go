// Package webhook ingests chain watcher and market data callbacks and
// reconciles them against the bridge lifecycle.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/starkbridge/middleware/internal/metrics"
	"github.com/starkbridge/middleware/pkg/bridgestore"
	"github.com/starkbridge/middleware/pkg/chains/starknet"
	"github.com/starkbridge/middleware/pkg/token"
)

// EVM webhook statuses reported by chain watchers.
const (
	evmStatusConfirmed = "confirmed"
	evmStatusFailed    = "failed"
)

// Lifecycle is the bridge surface webhooks reconcile against.
type Lifecycle interface {
	ApplyChainEvent(ctx context.Context, txHash string, succeeded bool, reason string) error
}

// Prices receives market data updates.
type Prices interface {
	ApplyPriceUpdate(ctx context.Context, update *token.PriceUpdate) error
}

// EVMEvent is a chain watcher callback for an EVM-family transaction.
type EVMEvent struct {
	TxHash      string `json:"txHash"`
	Status      string `json:"status"`
	BlockNumber int64  `json:"blockNumber,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// StarkNetEvent is a chain watcher callback for a StarkNet transaction.
type StarkNetEvent struct {
	TransactionHash string `json:"transaction_hash"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
}

// PriceEvent is a market data provider callback.
type PriceEvent struct {
	Address   string  `json:"address"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
	Volume24h string  `json:"volume24h,omitempty"`
}

// Service maps webhook payloads onto lifecycle and price transitions.
type Service struct {
	lifecycle Lifecycle
	prices    Prices
	logger    *zap.Logger
}

// NewService creates a webhook reconciliation service.
func NewService(lifecycle Lifecycle, prices Prices, logger *zap.Logger) *Service {
	return &Service{lifecycle: lifecycle, prices: prices, logger: logger}
}

// HandleEVM reconciles an EVM watcher event. Events for unknown transaction
// hashes are logged and dropped, the watcher must not retry them.
func (s *Service) HandleEVM(ctx context.Context, event *EVMEvent) error {
	if event.TxHash == "" {
		metrics.WebhookEvents.WithLabelValues("evm", "invalid").Inc()
		return fmt.Errorf("missing txHash")
	}

	var succeeded bool
	switch event.Status {
	case evmStatusConfirmed:
		succeeded = true
	case evmStatusFailed:
		succeeded = false
	default:
		metrics.WebhookEvents.WithLabelValues("evm", "invalid").Inc()
		return fmt.Errorf("unknown EVM status %q", event.Status)
	}

	return s.apply(ctx, "evm", event.TxHash, succeeded, event.Reason)
}

// HandleStarkNet reconciles a StarkNet watcher event. ACCEPTED_ON_L2 already
// counts as completion, L1 settlement only reinforces it.
func (s *Service) HandleStarkNet(ctx context.Context, event *StarkNetEvent) error {
	if event.TransactionHash == "" {
		metrics.WebhookEvents.WithLabelValues("starknet", "invalid").Inc()
		return fmt.Errorf("missing transaction_hash")
	}

	var succeeded bool
	switch event.Status {
	case starknet.StatusAcceptedOnL2, starknet.StatusAcceptedOnL1:
		succeeded = true
	case starknet.StatusRejected:
		succeeded = false
	default:
		metrics.WebhookEvents.WithLabelValues("starknet", "invalid").Inc()
		return fmt.Errorf("unknown StarkNet status %q", event.Status)
	}

	reason := event.Reason
	if !succeeded && reason == "" {
		reason = "transaction rejected on StarkNet"
	}
	return s.apply(ctx, "starknet", event.TransactionHash, succeeded, reason)
}

// HandlePrice applies a market data update.
func (s *Service) HandlePrice(ctx context.Context, event *PriceEvent) error {
	if event.Address == "" || event.Price <= 0 {
		metrics.WebhookEvents.WithLabelValues("price", "invalid").Inc()
		return fmt.Errorf("price event requires address and positive price")
	}

	err := s.prices.ApplyPriceUpdate(ctx, &token.PriceUpdate{
		Address:   event.Address,
		Price:     event.Price,
		Change24h: event.Change24h,
		Volume24h: event.Volume24h,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("price", "error").Inc()
		return fmt.Errorf("failed to apply price update: %w", err)
	}
	metrics.WebhookEvents.WithLabelValues("price", "ok").Inc()
	return nil
}

func (s *Service) apply(ctx context.Context, source, txHash string, succeeded bool, reason string) error {
	err := s.lifecycle.ApplyChainEvent(ctx, txHash, succeeded, reason)
	if err != nil {
		if errors.Is(err, bridgestore.ErrTxNotFound) {
			// Watchers see every bridge contract interaction, not only ours.
			s.logger.Info("dropping webhook for unknown transaction",
				zap.String("source", source), zap.String("tx_hash", txHash))
			metrics.WebhookEvents.WithLabelValues(source, "unknown").Inc()
			return nil
		}
		metrics.WebhookEvents.WithLabelValues(source, "error").Inc()
		return err
	}
	metrics.WebhookEvents.WithLabelValues(source, "ok").Inc()
	return nil
}
