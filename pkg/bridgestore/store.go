package bridgestore

import (
	"context"
	"errors"
	"time"

	"github.com/starkbridge/middleware/pkg/bridge"
)

// ErrTxNotFound is returned when a transaction lookup finds no matching record.
var ErrTxNotFound = errors.New("bridge transaction not found")

// Store defines the interface for bridge transaction persistence.
//
// All status transitions are compare-and-swap updates. The bool result
// reports whether the transition was applied; false means the row was no
// longer in an eligible state and the caller lost the race.
type Store interface {
	Create(ctx context.Context, tx *bridge.Transaction) error
	Get(ctx context.Context, id string) (*bridge.Transaction, error)
	GetByTxHash(ctx context.Context, txHash string) (*bridge.Transaction, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*bridge.Transaction, int, error)

	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkConfirmed(ctx context.Context, id, txHash string) (bool, error)
	Complete(ctx context.Context, id string, completedAt time.Time, actualTime int64) (bool, error)
	MarkFailed(ctx context.Context, id string, from []bridge.Status, errMsg string) (bool, error)

	ListStale(ctx context.Context, olderThan time.Time, statuses []bridge.Status, limit int) ([]*bridge.Transaction, error)
	CountNonTerminal(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*bridge.Stats, error)
}
