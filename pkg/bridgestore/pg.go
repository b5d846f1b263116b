package bridgestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/starkbridge/middleware/pkg/bridge"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the bridge transaction store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) Create(ctx context.Context, tx *bridge.Transaction) error {
	dao := toTransactionDao(tx)

	_, err := s.db.NewInsert().
		Model(dao).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create bridge transaction: %w", err)
	}

	return nil
}

func (s *pgStore) Get(ctx context.Context, id string) (*bridge.Transaction, error) {
	dao := new(TransactionDao)
	err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("failed to get bridge transaction: %w", err)
	}
	return toTransaction(dao), nil
}

func (s *pgStore) GetByTxHash(ctx context.Context, txHash string) (*bridge.Transaction, error) {
	dao := new(TransactionDao)
	err := s.db.NewSelect().Model(dao).Where("tx_hash = ?", txHash).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("failed to get bridge transaction by hash: %w", err)
	}
	return toTransaction(dao), nil
}

func (s *pgStore) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*bridge.Transaction, int, error) {
	var daos []TransactionDao
	total, err := s.db.NewSelect().
		Model(&daos).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bridge transactions: %w", err)
	}

	txs := make([]*bridge.Transaction, len(daos))
	for i := range daos {
		txs[i] = toTransaction(&daos[i])
	}
	return txs, total, nil
}

// MarkProcessing claims a pending transaction for dispatch. Exactly one
// caller wins for any given id.
func (s *pgStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("status = ?", bridge.StatusProcessing).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("status = ?", bridge.StatusPending).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark transaction processing: %w", err)
	}
	return applied(res)
}

func (s *pgStore) MarkConfirmed(ctx context.Context, id, txHash string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("status = ?", bridge.StatusConfirmed).
		Set("tx_hash = ?", txHash).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("status = ?", bridge.StatusProcessing).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark transaction confirmed: %w", err)
	}
	return applied(res)
}

func (s *pgStore) Complete(ctx context.Context, id string, completedAt time.Time, actualTime int64) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("status = ?", bridge.StatusCompleted).
		Set("completed_at = ?", completedAt).
		Set("actual_time = ?", actualTime).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("status = ?", bridge.StatusConfirmed).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to complete transaction: %w", err)
	}
	return applied(res)
}

func (s *pgStore) MarkFailed(ctx context.Context, id string, from []bridge.Status, errMsg string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	res, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("status = ?", bridge.StatusFailed).
		Set("error_message = ?", errMsg).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	return applied(res)
}

func (s *pgStore) ListStale(ctx context.Context, olderThan time.Time, statuses []bridge.Status, limit int) ([]*bridge.Transaction, error) {
	var daos []TransactionDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status IN (?)", bun.In(statuses)).
		Where("updated_at < ?", olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale transactions: %w", err)
	}

	txs := make([]*bridge.Transaction, len(daos))
	for i := range daos {
		txs[i] = toTransaction(&daos[i])
	}
	return txs, nil
}

func (s *pgStore) CountNonTerminal(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().
		Model((*TransactionDao)(nil)).
		Where("status IN (?)", bun.In([]bridge.Status{
			bridge.StatusPending, bridge.StatusProcessing, bridge.StatusConfirmed,
		})).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count active transactions: %w", err)
	}
	return count, nil
}

func (s *pgStore) Stats(ctx context.Context) (*bridge.Stats, error) {
	var row struct {
		TotalVolume string  `bun:"total_volume"`
		Total       int     `bun:"total"`
		Completed   int     `bun:"completed"`
		AvgActual   float64 `bun:"avg_actual"`
	}

	err := s.db.NewSelect().
		Model((*TransactionDao)(nil)).
		ColumnExpr("COALESCE(SUM(amount) FILTER (WHERE status = ?), 0)::TEXT AS total_volume", bridge.StatusCompleted).
		ColumnExpr("COUNT(*) AS total").
		ColumnExpr("COUNT(*) FILTER (WHERE status = ?) AS completed", bridge.StatusCompleted).
		ColumnExpr("COALESCE(AVG(actual_time) FILTER (WHERE status = ?), 0) AS avg_actual", bridge.StatusCompleted).
		Scan(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to compute bridge stats: %w", err)
	}

	stats := &bridge.Stats{
		TotalVolume:       row.TotalVolume,
		TotalTransactions: row.Total,
		AvgActualTime:     row.AvgActual,
	}
	if row.Total > 0 {
		stats.SuccessRate = float64(row.Completed) / float64(row.Total)
	}
	return stats, nil
}

func applied(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
