package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/starkbridge/middleware/internal/metrics"
	"github.com/starkbridge/middleware/pkg/bridge"
	"github.com/starkbridge/middleware/pkg/config"
)

// SweepStore is the data-access surface of the staleness sweeper.
type SweepStore interface {
	ListStale(ctx context.Context, olderThan time.Time, statuses []bridge.Status, limit int) ([]*bridge.Transaction, error)
	CountNonTerminal(ctx context.Context) (int, error)
	MarkFailed(ctx context.Context, id string, from []bridge.Status, errMsg string) (bool, error)
}

// Sweeper periodically scans for transactions stuck in a non-terminal state.
// Moderately stale transactions are logged; transactions stale beyond the
// fail age are force-failed so users are not left watching a spinner forever.
type Sweeper struct {
	store    SweepStore
	notifier Notifier
	cfg      config.BridgeConfig
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a staleness sweeper.
func NewSweeper(store SweepStore, notifier Notifier, cfg config.BridgeConfig, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop terminates the sweep loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepInterval)
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("staleness sweep failed", zap.Error(err))
				metrics.ErrorsTotal.WithLabelValues("sweeper", "sweep").Inc()
			}
			cancel()
		}
	}
}

// Sweep runs a single staleness pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := time.Now().UTC()
	active := []bridge.Status{bridge.StatusPending, bridge.StatusProcessing, bridge.StatusConfirmed}

	if count, err := s.store.CountNonTerminal(ctx); err == nil {
		metrics.PendingTransactions.Set(float64(count))
	} else {
		s.logger.Warn("failed to count active transactions", zap.Error(err))
	}

	stale, err := s.store.ListStale(ctx, now.Add(-s.cfg.StaleWarnAge), active, s.cfg.SweepBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list stale transactions: %w", err)
	}

	failCutoff := now.Add(-s.cfg.StaleFailAge)
	for _, tx := range stale {
		if tx.UpdatedAt.After(failCutoff) {
			s.logger.Warn("transaction is stale",
				zap.String("id", tx.ID),
				zap.String("status", string(tx.Status)),
				zap.Duration("age", now.Sub(tx.UpdatedAt)),
			)
			continue
		}

		applied, err := s.store.MarkFailed(ctx, tx.ID, active,
			fmt.Sprintf("transaction stale for over %s", s.cfg.StaleFailAge))
		if err != nil {
			s.logger.Error("failed to fail stale transaction",
				zap.String("id", tx.ID), zap.Error(err))
			continue
		}
		if !applied {
			// Finished between listing and this write.
			continue
		}

		s.logger.Warn("stale transaction force-failed",
			zap.String("id", tx.ID),
			zap.String("status", string(tx.Status)),
		)
		metrics.StaleFailures.Inc()
		metrics.TransactionsTotal.WithLabelValues(
			string(tx.FromChain), string(tx.ToChain), string(bridge.StatusFailed)).Inc()
		if s.notifier != nil {
			tx.Status = bridge.StatusFailed
			s.notifier.TransactionUpdated(tx)
		}
	}

	return nil
}
