package service

import (
	"context"
	"sync"
	"time"

	"github.com/starkbridge/middleware/pkg/bridge"
	"github.com/starkbridge/middleware/pkg/bridgestore"
	"github.com/starkbridge/middleware/pkg/chains"
	"github.com/starkbridge/middleware/pkg/token"
)

// memStore is an in-memory Store with the same compare-and-swap transition
// semantics as the postgres store. Guarded by a mutex so concurrent callers
// exercise real race outcomes.
type memStore struct {
	mu  sync.Mutex
	txs map[string]*bridge.Transaction
}

func newMemStore() *memStore {
	return &memStore{txs: map[string]*bridge.Transaction{}}
}

func cloneTx(tx *bridge.Transaction) *bridge.Transaction {
	cp := *tx
	return &cp
}

func (m *memStore) Create(_ context.Context, tx *bridge.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.ID] = cloneTx(tx)
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*bridge.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, bridgestore.ErrTxNotFound
	}
	return cloneTx(tx), nil
}

func (m *memStore) GetByTxHash(_ context.Context, txHash string) (*bridge.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.txs {
		if tx.TxHash == txHash {
			return cloneTx(tx), nil
		}
	}
	return nil, bridgestore.ErrTxNotFound
}

func (m *memStore) ListByUser(_ context.Context, userID string, offset, limit int) ([]*bridge.Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*bridge.Transaction
	for _, tx := range m.txs {
		if tx.UserID == userID {
			all = append(all, cloneTx(tx))
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memStore) MarkProcessing(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok || tx.Status != bridge.StatusPending {
		return false, nil
	}
	tx.Status = bridge.StatusProcessing
	tx.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memStore) MarkConfirmed(_ context.Context, id, txHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok || tx.Status != bridge.StatusProcessing {
		return false, nil
	}
	tx.Status = bridge.StatusConfirmed
	tx.TxHash = txHash
	tx.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memStore) Complete(_ context.Context, id string, completedAt time.Time, actualTime int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok || tx.Status != bridge.StatusConfirmed {
		return false, nil
	}
	tx.Status = bridge.StatusCompleted
	tx.CompletedAt = &completedAt
	tx.ActualTime = &actualTime
	tx.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memStore) MarkFailed(_ context.Context, id string, from []bridge.Status, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return false, nil
	}
	eligible := false
	for _, s := range from {
		if tx.Status == s {
			eligible = true
			break
		}
	}
	if !eligible {
		return false, nil
	}
	tx.Status = bridge.StatusFailed
	tx.ErrorMessage = errMsg
	tx.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memStore) ListStale(_ context.Context, olderThan time.Time, statuses []bridge.Status, limit int) ([]*bridge.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []*bridge.Transaction
	for _, tx := range m.txs {
		if len(stale) >= limit {
			break
		}
		for _, s := range statuses {
			if tx.Status == s && tx.UpdatedAt.Before(olderThan) {
				stale = append(stale, cloneTx(tx))
				break
			}
		}
	}
	return stale, nil
}

func (m *memStore) CountNonTerminal(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, tx := range m.txs {
		if !tx.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (m *memStore) Stats(_ context.Context) (*bridge.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &bridge.Stats{TotalVolume: "0"}
	completed := 0
	for _, tx := range m.txs {
		stats.TotalTransactions++
		if tx.Status == bridge.StatusCompleted {
			completed++
		}
	}
	if stats.TotalTransactions > 0 {
		stats.SuccessRate = float64(completed) / float64(stats.TotalTransactions)
	}
	return stats, nil
}

// count returns the number of stored transactions.
func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

// put stores a transaction directly, bypassing lifecycle rules.
func (m *memStore) put(tx *bridge.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.ID] = cloneTx(tx)
}

// status reads a transaction's current status.
func (m *memStore) status(id string) bridge.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[id].Status
}

type mockResolver struct {
	GetTokenFn func(ctx context.Context, address string) (*token.Token, error)
}

func (m *mockResolver) GetToken(ctx context.Context, address string) (*token.Token, error) {
	return m.GetTokenFn(ctx, address)
}

type mockAdapter struct {
	chain             bridge.Chain
	TransferFn        func(ctx context.Context, tokenAddress, recipient, amount string) (string, error)
	WaitForFinalityFn func(ctx context.Context, txHash string) (*chains.Receipt, error)
}

func (m *mockAdapter) Chain() bridge.Chain { return m.chain }

func (m *mockAdapter) GetBalance(context.Context, string, string) (string, error) {
	return "0", nil
}

func (m *mockAdapter) Transfer(ctx context.Context, tokenAddress, recipient, amount string) (string, error) {
	return m.TransferFn(ctx, tokenAddress, recipient, amount)
}

func (m *mockAdapter) WaitForFinality(ctx context.Context, txHash string) (*chains.Receipt, error) {
	return m.WaitForFinalityFn(ctx, txHash)
}

// recordingNotifier captures transaction updates and signals each one.
type recordingNotifier struct {
	mu      sync.Mutex
	updates []*bridge.Transaction
	signal  chan bridge.Status
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{signal: make(chan bridge.Status, 64)}
}

func (n *recordingNotifier) TransactionUpdated(tx *bridge.Transaction) {
	n.mu.Lock()
	n.updates = append(n.updates, cloneTx(tx))
	n.mu.Unlock()
	n.signal <- tx.Status
}

func (n *recordingNotifier) byStatus(status bridge.Status) []*bridge.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*bridge.Transaction
	for _, tx := range n.updates {
		if tx.Status == status {
			out = append(out, tx)
		}
	}
	return out
}

// waitFor blocks until an update with the given status arrives.
func (n *recordingNotifier) waitFor(status bridge.Status, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case s := <-n.signal:
			if s == status {
				return true
			}
		case <-deadline:
			return false
		}
	}
}
