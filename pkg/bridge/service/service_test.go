package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/starkbridge/middleware/pkg/app/errors"
	"github.com/starkbridge/middleware/pkg/bridge"
	"github.com/starkbridge/middleware/pkg/bridgestore"
	"github.com/starkbridge/middleware/pkg/chains"
	"github.com/starkbridge/middleware/pkg/estimator"
	"github.com/starkbridge/middleware/pkg/token"
)

const (
	testUser  = "0x1111111111111111111111111111111111111111"
	testToken = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

func knownTokenResolver() *mockResolver {
	return &mockResolver{
		GetTokenFn: func(_ context.Context, address string) (*token.Token, error) {
			if address != testToken {
				return nil, token.ErrNotFound
			}
			return &token.Token{
				Address:  testToken,
				Symbol:   "USDC",
				Decimals: 6,
				IsActive: true,
			}, nil
		},
	}
}

func newTestService(
	store Store,
	adapter *mockAdapter,
	notifier Notifier,
) Service {
	var adapters Adapters
	if adapter != nil {
		adapters = chains.NewRegistry(adapter)
	} else {
		adapters = chains.NewRegistry()
	}
	return NewService(store, knownTokenResolver(), adapters, estimator.New(), notifier, zap.NewNop())
}

func validCreateRequest() *bridge.CreateRequest {
	return &bridge.CreateRequest{
		FromChain:    bridge.ChainEthereum,
		ToChain:      bridge.ChainStarkNet,
		TokenAddress: testToken,
		Amount:       "1000000000000000000",
	}
}

func TestCreateTransaction_Success(t *testing.T) {
	store := newMemStore()
	notifier := newRecordingNotifier()
	svc := newTestService(store, nil, notifier)

	tx, err := svc.CreateTransaction(context.Background(), testUser, validCreateRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, testUser, tx.UserID)
	assert.Equal(t, bridge.StatusPending, tx.Status)
	assert.Equal(t, "USDC", tx.TokenSymbol)
	assert.Equal(t, bridge.DefaultSlippage, tx.Slippage)
	assert.Equal(t, 900, tx.EstimatedTime)
	assert.NotEmpty(t, tx.Fees.TotalFee)
	assert.Empty(t, tx.TxHash)

	stored, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusPending, stored.Status)

	require.Len(t, notifier.byStatus(bridge.StatusPending), 1)
}

func TestCreateTransaction_SameChainPersistsNothing(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	req := validCreateRequest()
	req.ToChain = req.FromChain

	_, err := svc.CreateTransaction(context.Background(), testUser, req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
	assert.ErrorIs(t, err, ErrSameChain)
	assert.Equal(t, 0, store.count())
}

func TestCreateTransaction_Validation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*bridge.CreateRequest)
	}{
		{"unknown source chain", func(r *bridge.CreateRequest) { r.FromChain = "solana" }},
		{"unknown destination chain", func(r *bridge.CreateRequest) { r.ToChain = "solana" }},
		{"zero amount", func(r *bridge.CreateRequest) { r.Amount = "0" }},
		{"negative amount", func(r *bridge.CreateRequest) { r.Amount = "-5" }},
		{"non-numeric amount", func(r *bridge.CreateRequest) { r.Amount = "lots" }},
		{"missing token", func(r *bridge.CreateRequest) { r.TokenAddress = "" }},
		{"slippage too low", func(r *bridge.CreateRequest) { r.Slippage = 0.01 }},
		{"slippage too high", func(r *bridge.CreateRequest) { r.Slippage = 75 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(req)
			_, err := svc.CreateTransaction(ctx, testUser, req)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.CategoryDataError), "got %v", err)
		})
	}
	assert.Equal(t, 0, store.count())
}

func TestCreateTransaction_UnknownToken(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	req := validCreateRequest()
	req.TokenAddress = "0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"

	_, err := svc.CreateTransaction(context.Background(), testUser, req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryNotSupported))
	assert.Equal(t, 0, store.count())
}

func TestCreateTransaction_InactiveToken(t *testing.T) {
	store := newMemStore()
	resolver := &mockResolver{
		GetTokenFn: func(context.Context, string) (*token.Token, error) {
			return &token.Token{Address: testToken, Symbol: "OLD", IsActive: false}, nil
		},
	}
	svc := NewService(store, resolver, chains.NewRegistry(), estimator.New(), nil, zap.NewNop())

	_, err := svc.CreateTransaction(context.Background(), testUser, validCreateRequest())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryNotSupported))
}

func TestProcessTransaction_DispatchesExactlyOnce(t *testing.T) {
	store := newMemStore()
	notifier := newRecordingNotifier()

	var transfers atomic.Int64
	adapter := &mockAdapter{
		chain: bridge.ChainEthereum,
		TransferFn: func(_ context.Context, _, _, _ string) (string, error) {
			transfers.Add(1)
			return "0xhash1", nil
		},
		WaitForFinalityFn: func(context.Context, string) (*chains.Receipt, error) {
			// Leave finality to reconciliation for this test.
			return nil, chains.ErrFinalityTimeout
		},
	}
	svc := newTestService(store, adapter, notifier)

	tx, err := svc.CreateTransaction(context.Background(), testUser, validCreateRequest())
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.ProcessTransaction(context.Background(), tx.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), transfers.Load())
	assert.Equal(t, bridge.StatusConfirmed, store.status(tx.ID))

	stored, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xhash1", stored.TxHash)
}

func TestProcessTransaction_DispatchFailureFailsTransaction(t *testing.T) {
	store := newMemStore()
	notifier := newRecordingNotifier()
	adapter := &mockAdapter{
		chain: bridge.ChainEthereum,
		TransferFn: func(_ context.Context, _, _, _ string) (string, error) {
			return "", &chains.AdapterError{
				Chain: bridge.ChainEthereum,
				Op:    "transfer",
				Err:   errors.New("nonce too low"),
			}
		},
	}
	svc := newTestService(store, adapter, notifier)

	tx, err := svc.CreateTransaction(context.Background(), testUser, validCreateRequest())
	require.NoError(t, err)

	err = svc.ProcessTransaction(context.Background(), tx.ID)
	require.Error(t, err)

	stored, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "nonce too low")
	require.Len(t, notifier.byStatus(bridge.StatusFailed), 1)
}

func TestProcessTransaction_MonitorCompletes(t *testing.T) {
	store := newMemStore()
	notifier := newRecordingNotifier()
	adapter := &mockAdapter{
		chain: bridge.ChainEthereum,
		TransferFn: func(_ context.Context, _, _, _ string) (string, error) {
			return "0xhash2", nil
		},
		WaitForFinalityFn: func(_ context.Context, txHash string) (*chains.Receipt, error) {
			return &chains.Receipt{TxHash: txHash, BlockNumber: 100, Succeeded: true}, nil
		},
	}
	svc := newTestService(store, adapter, notifier)

	tx, err := svc.CreateTransaction(context.Background(), testUser, validCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ProcessTransaction(context.Background(), tx.ID))

	require.True(t, notifier.waitFor(bridge.StatusCompleted, 5*time.Second),
		"expected a completion notification")

	stored, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.ActualTime)
}

func TestProcessTransaction_MonitorRevertFails(t *testing.T) {
	store := newMemStore()
	notifier := newRecordingNotifier()
	adapter := &mockAdapter{
		chain: bridge.ChainEthereum,
		TransferFn: func(_ context.Context, _, _, _ string) (string, error) {
			return "0xhash3", nil
		},
		WaitForFinalityFn: func(_ context.Context, txHash string) (*chains.Receipt, error) {
			return &chains.Receipt{TxHash: txHash, Succeeded: false, RawStatus: "0x0"}, nil
		},
	}
	svc := newTestService(store, adapter, notifier)

	tx, err := svc.CreateTransaction(context.Background(), testUser, validCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ProcessTransaction(context.Background(), tx.ID))

	require.True(t, notifier.waitFor(bridge.StatusFailed, 5*time.Second))

	stored, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "reverted")
}

func TestProcessTransaction_NonPendingIsNoOp(t *testing.T) {
	store := newMemStore()
	var transfers atomic.Int64
	adapter := &mockAdapter{
		chain: bridge.ChainEthereum,
		TransferFn: func(_ context.Context, _, _, _ string) (string, error) {
			transfers.Add(1)
			return "0xhash4", nil
		},
	}
	svc := newTestService(store, adapter, nil)

	tx := seededTransaction(bridge.StatusFailed, "")
	store.put(tx)

	require.NoError(t, svc.ProcessTransaction(context.Background(), tx.ID))
	assert.Equal(t, int64(0), transfers.Load())
	assert.Equal(t, bridge.StatusFailed, store.status(tx.ID))
}

func seededTransaction(status bridge.Status, txHash string) *bridge.Transaction {
	now := time.Now().UTC()
	return &bridge.Transaction{
		ID:           uuid.New().String(),
		UserID:       testUser,
		FromChain:    bridge.ChainEthereum,
		ToChain:      bridge.ChainStarkNet,
		TokenAddress: testToken,
		TokenSymbol:  "USDC",
		Amount:       "100",
		Slippage:     bridge.DefaultSlippage,
		Status:       status,
		TxHash:       txHash,
		CreatedAt:    now.Add(-5 * time.Minute),
		UpdatedAt:    now,
	}
}

func TestApplyChainEvent_ConcurrentDeliveriesCompleteOnce(t *testing.T) {
	store := newMemStore()
	notifier := newRecordingNotifier()
	svc := newTestService(store, nil, notifier)

	tx := seededTransaction(bridge.StatusConfirmed, "0xfeed")
	store.put(tx)

	const deliveries = 8
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.ApplyChainEvent(context.Background(), "0xfeed", true, ""))
		}()
	}
	wg.Wait()

	completions := notifier.byStatus(bridge.StatusCompleted)
	require.Len(t, completions, 1, "exactly one delivery should win")
	assert.Equal(t, bridge.StatusCompleted, store.status(tx.ID))

	stored, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)
}

func TestApplyChainEvent_UnknownHash(t *testing.T) {
	svc := newTestService(newMemStore(), nil, nil)

	err := svc.ApplyChainEvent(context.Background(), "0xunknown", true, "")
	assert.ErrorIs(t, err, bridgestore.ErrTxNotFound)
}

func TestApplyChainEvent_TerminalIsNoOp(t *testing.T) {
	store := newMemStore()
	notifier := newRecordingNotifier()
	svc := newTestService(store, nil, notifier)

	tx := seededTransaction(bridge.StatusConfirmed, "0xdone")
	store.put(tx)

	require.NoError(t, svc.ApplyChainEvent(context.Background(), "0xdone", true, ""))
	require.NoError(t, svc.ApplyChainEvent(context.Background(), "0xdone", true, ""))
	require.NoError(t, svc.ApplyChainEvent(context.Background(), "0xdone", false, "late failure"))

	require.Len(t, notifier.byStatus(bridge.StatusCompleted), 1)
	require.Empty(t, notifier.byStatus(bridge.StatusFailed))
	assert.Equal(t, bridge.StatusCompleted, store.status(tx.ID))
}

func TestApplyChainEvent_Failure(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	tx := seededTransaction(bridge.StatusConfirmed, "0xbad")
	store.put(tx)

	require.NoError(t, svc.ApplyChainEvent(context.Background(), "0xbad", false, "rejected on L2"))

	stored, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusFailed, stored.Status)
	assert.Equal(t, "rejected on L2", stored.ErrorMessage)
}

func TestGetTransaction_OtherUsersAreHidden(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	tx := seededTransaction(bridge.StatusPending, "")
	store.put(tx)

	got, err := svc.GetTransaction(context.Background(), testUser, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	_, err = svc.GetTransaction(context.Background(), "0x2222222222222222222222222222222222222222", tx.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))

	_, err = svc.GetTransaction(context.Background(), testUser, uuid.New().String())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))
}

func TestListTransactions_Pagination(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	for i := 0; i < 5; i++ {
		store.put(seededTransaction(bridge.StatusPending, fmt.Sprintf("0x%d", i)))
	}

	page, err := svc.ListTransactions(context.Background(), testUser, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrev)

	page, err = svc.ListTransactions(context.Background(), testUser, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)

	// Out-of-range values normalize instead of failing.
	page, err = svc.ListTransactions(context.Background(), testUser, -1, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, maxPageLimit, page.Limit)
}

func TestEstimateBridge(t *testing.T) {
	svc := newTestService(newMemStore(), nil, nil)

	est, err := svc.EstimateBridge(context.Background(), &bridge.EstimateRequest{
		FromChain: bridge.ChainEthereum,
		ToChain:   bridge.ChainStarkNet,
		Amount:    "1000000000000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, 900, est.EstimatedTime)
	assert.Equal(t, "3000000000000000", est.Fees.BridgeFee)

	_, err = svc.EstimateBridge(context.Background(), &bridge.EstimateRequest{
		FromChain: bridge.ChainEthereum,
		ToChain:   bridge.ChainEthereum,
		Amount:    "1",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}
