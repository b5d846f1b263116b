package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/starkbridge/middleware/pkg/bridge"
	"github.com/starkbridge/middleware/pkg/config"
)

func sweepConfig() config.BridgeConfig {
	return config.BridgeConfig{
		SweepInterval:  time.Minute,
		StaleWarnAge:   30 * time.Minute,
		StaleFailAge:   time.Hour,
		SweepBatchSize: 50,
	}
}

func agedTransaction(status bridge.Status, age time.Duration) *bridge.Transaction {
	tx := seededTransaction(status, "")
	tx.UpdatedAt = time.Now().UTC().Add(-age)
	return tx
}

func TestSweepFailsOnlyBeyondFailAge(t *testing.T) {
	store := newMemStore()
	notifier := newRecordingNotifier()

	abandoned := agedTransaction(bridge.StatusPending, 65*time.Minute)
	slow := agedTransaction(bridge.StatusProcessing, 40*time.Minute)
	fresh := agedTransaction(bridge.StatusPending, 10*time.Minute)
	// A confirmed transaction no finality event ever arrives for is also
	// failed once its last update is older than the fail age.
	orphaned := agedTransaction(bridge.StatusConfirmed, 90*time.Minute)
	orphaned.TxHash = "0xdeadbeef"
	done := agedTransaction(bridge.StatusCompleted, 3*time.Hour)
	store.put(abandoned)
	store.put(slow)
	store.put(fresh)
	store.put(orphaned)
	store.put(done)

	sweeper := NewSweeper(store, notifier, sweepConfig(), zap.NewNop())
	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.Equal(t, bridge.StatusFailed, store.status(abandoned.ID))
	assert.Equal(t, bridge.StatusProcessing, store.status(slow.ID))
	assert.Equal(t, bridge.StatusPending, store.status(fresh.ID))
	assert.Equal(t, bridge.StatusFailed, store.status(orphaned.ID))
	assert.Equal(t, bridge.StatusCompleted, store.status(done.ID))

	failed := notifier.byStatus(bridge.StatusFailed)
	require.Len(t, failed, 2)
	failedIDs := []string{failed[0].ID, failed[1].ID}
	assert.ElementsMatch(t, []string{abandoned.ID, orphaned.ID}, failedIDs)

	stored, err := store.Get(context.Background(), abandoned.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.ErrorMessage, "stale")
}

func TestSweepIsIdempotent(t *testing.T) {
	store := newMemStore()
	notifier := newRecordingNotifier()

	abandoned := agedTransaction(bridge.StatusConfirmed, 2*time.Hour)
	store.put(abandoned)

	sweeper := NewSweeper(store, notifier, sweepConfig(), zap.NewNop())
	require.NoError(t, sweeper.Sweep(context.Background()))
	require.NoError(t, sweeper.Sweep(context.Background()))

	// The second pass sees a terminal transaction and leaves it alone.
	require.Len(t, notifier.byStatus(bridge.StatusFailed), 1)
}

func TestSweeperStartStop(t *testing.T) {
	store := newMemStore()
	cfg := sweepConfig()
	cfg.SweepInterval = 10 * time.Millisecond

	stale := agedTransaction(bridge.StatusPending, 2*time.Hour)
	store.put(stale)

	sweeper := NewSweeper(store, nil, cfg, zap.NewNop())
	sweeper.Start()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.status(stale.ID) == bridge.StatusFailed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	sweeper.Stop()

	assert.Equal(t, bridge.StatusFailed, store.status(stale.ID))
}
