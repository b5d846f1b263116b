// Package service implements the bridge transaction lifecycle: creation,
// dispatch, finality monitoring and reconciliation of chain events.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/starkbridge/middleware/internal/metrics"
	apperrors "github.com/starkbridge/middleware/pkg/app/errors"
	"github.com/starkbridge/middleware/pkg/bridge"
	"github.com/starkbridge/middleware/pkg/bridgestore"
	"github.com/starkbridge/middleware/pkg/chains"
	"github.com/starkbridge/middleware/pkg/token"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100

	// monitorTimeout bounds the background finality watch so an adapter bug
	// can never leak a goroutine forever.
	monitorTimeout = 30 * time.Minute
)

var ErrSameChain = errors.New("source and destination chains must differ")

// Store is the narrow data-access interface for the lifecycle service.
// Defined here to keep the service decoupled from bridgestore implementation details.
type Store interface {
	Create(ctx context.Context, tx *bridge.Transaction) error
	Get(ctx context.Context, id string) (*bridge.Transaction, error)
	GetByTxHash(ctx context.Context, txHash string) (*bridge.Transaction, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*bridge.Transaction, int, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkConfirmed(ctx context.Context, id, txHash string) (bool, error)
	Complete(ctx context.Context, id string, completedAt time.Time, actualTime int64) (bool, error)
	MarkFailed(ctx context.Context, id string, from []bridge.Status, errMsg string) (bool, error)
	Stats(ctx context.Context) (*bridge.Stats, error)
}

// TokenResolver checks that a token is registered before a bridge opens.
type TokenResolver interface {
	GetToken(ctx context.Context, address string) (*token.Token, error)
}

// Adapters resolves the chain adapter used to dispatch a transaction.
type Adapters interface {
	Get(chain bridge.Chain) (chains.Adapter, error)
}

// Estimator produces fee and duration terms for a bridge route.
type Estimator interface {
	Estimate(fromChain, toChain bridge.Chain, amount string) (*bridge.Estimate, error)
}

// Notifier pushes transaction updates to connected clients.
type Notifier interface {
	TransactionUpdated(tx *bridge.Transaction)
}

// Service defines the interface for the bridge lifecycle business logic
type Service interface {
	CreateTransaction(ctx context.Context, userID string, req *bridge.CreateRequest) (*bridge.Transaction, error)
	ProcessTransaction(ctx context.Context, id string) error
	GetTransaction(ctx context.Context, userID, id string) (*bridge.Transaction, error)
	ListTransactions(ctx context.Context, userID string, page, limit int) (*bridge.Page, error)
	EstimateBridge(ctx context.Context, req *bridge.EstimateRequest) (*bridge.Estimate, error)
	ApplyChainEvent(ctx context.Context, txHash string, succeeded bool, reason string) error
	Stats(ctx context.Context) (*bridge.Stats, error)
}

type bridgeService struct {
	store     Store
	tokens    TokenResolver
	adapters  Adapters
	estimator Estimator
	notifier  Notifier
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewService creates a new bridge lifecycle service
func NewService(
	store Store,
	tokens TokenResolver,
	adapters Adapters,
	est Estimator,
	notifier Notifier,
	logger *zap.Logger,
) Service {
	return &bridgeService{
		store:     store,
		tokens:    tokens,
		adapters:  adapters,
		estimator: est,
		notifier:  notifier,
		validate:  validator.New(),
		logger:    logger,
	}
}

// CreateTransaction validates a bridge request, snapshots the current fee and
// time estimate into it and persists it in the pending state. Nothing is
// persisted when validation fails.
func (s *bridgeService) CreateTransaction(
	ctx context.Context,
	userID string,
	req *bridge.CreateRequest,
) (*bridge.Transaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.BadRequestError(err, "missing required fields")
	}
	if err := validateRoute(req.FromChain, req.ToChain); err != nil {
		return nil, err
	}
	if !bridge.PositiveAmount(req.Amount) {
		return nil, apperrors.BadRequestError(nil, "amount must be a positive decimal")
	}

	slippage := req.Slippage
	if slippage == 0 {
		slippage = bridge.DefaultSlippage
	}
	if slippage < bridge.MinSlippage || slippage > bridge.MaxSlippage {
		return nil, apperrors.BadRequestError(nil,
			fmt.Sprintf("slippage must be between %.1f and %.1f", bridge.MinSlippage, bridge.MaxSlippage))
	}

	tok, err := s.tokens.GetToken(ctx, req.TokenAddress)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return nil, apperrors.NotSupportedError(err, "token is not supported")
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	if !tok.IsActive {
		return nil, apperrors.NotSupportedError(nil, "token is not active")
	}

	est, err := s.estimator.Estimate(req.FromChain, req.ToChain, req.Amount)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "failed to estimate bridge terms")
	}

	now := time.Now().UTC()
	tx := &bridge.Transaction{
		ID:            uuid.New().String(),
		UserID:        userID,
		FromChain:     req.FromChain,
		ToChain:       req.ToChain,
		TokenAddress:  req.TokenAddress,
		TokenSymbol:   tok.Symbol,
		Amount:        req.Amount,
		Slippage:      slippage,
		Status:        bridge.StatusPending,
		Fees:          est.Fees,
		EstimatedTime: est.EstimatedTime,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to persist transaction: %w", err)
	}

	s.logger.Info("bridge transaction created",
		zap.String("id", tx.ID),
		zap.String("from_chain", string(tx.FromChain)),
		zap.String("to_chain", string(tx.ToChain)),
		zap.String("token", tx.TokenSymbol),
	)
	metrics.TransactionsTotal.WithLabelValues(
		string(tx.FromChain), string(tx.ToChain), string(bridge.StatusPending)).Inc()
	s.notify(tx)

	return tx, nil
}

// ProcessTransaction claims a pending transaction and dispatches it on the
// source chain. The pending->processing swap guarantees at most one dispatch
// per transaction no matter how many callers race.
func (s *bridgeService) ProcessTransaction(ctx context.Context, id string) error {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", id, err)
	}

	claimed, err := s.store.MarkProcessing(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to claim transaction %s: %w", id, err)
	}
	if !claimed {
		s.logger.Warn("skipping dispatch, transaction is no longer pending",
			zap.String("id", id), zap.String("status", string(tx.Status)))
		return nil
	}
	tx.Status = bridge.StatusProcessing
	s.notify(tx)

	adapter, err := s.adapters.Get(tx.FromChain)
	if err != nil {
		s.fail(ctx, tx, []bridge.Status{bridge.StatusProcessing}, err.Error())
		return fmt.Errorf("failed to resolve adapter: %w", err)
	}

	txHash, err := adapter.Transfer(ctx, tx.TokenAddress, tx.UserID, tx.Amount)
	if err != nil {
		metrics.DispatchesTotal.WithLabelValues(string(tx.FromChain), "error").Inc()
		s.fail(ctx, tx, []bridge.Status{bridge.StatusProcessing}, err.Error())
		return fmt.Errorf("dispatch failed for %s: %w", id, err)
	}
	metrics.DispatchesTotal.WithLabelValues(string(tx.FromChain), "ok").Inc()

	confirmed, err := s.store.MarkConfirmed(ctx, id, txHash)
	if err != nil {
		return fmt.Errorf("failed to record tx hash for %s: %w", id, err)
	}
	if !confirmed {
		// The sweeper can fail a transaction between dispatch and this write.
		s.logger.Warn("transaction left processing before confirmation",
			zap.String("id", id), zap.String("tx_hash", txHash))
		return nil
	}

	tx.Status = bridge.StatusConfirmed
	tx.TxHash = txHash
	s.logger.Info("bridge transaction dispatched",
		zap.String("id", id),
		zap.String("chain", string(tx.FromChain)),
		zap.String("tx_hash", txHash),
	)
	s.notify(tx)

	go s.monitor(adapter, tx)

	return nil
}

// monitor watches a dispatched transaction until the chain reports a terminal
// status. It runs detached from the request; every outcome is recorded via a
// guarded transition, so losing a race against a webhook is harmless.
func (s *bridgeService) monitor(adapter chains.Adapter, tx *bridge.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), monitorTimeout)
	defer cancel()

	receipt, err := adapter.WaitForFinality(ctx, tx.TxHash)
	if err != nil {
		if errors.Is(err, chains.ErrFinalityTimeout) {
			s.logger.Warn("finality watch exhausted, leaving transaction to reconciliation",
				zap.String("id", tx.ID), zap.String("tx_hash", tx.TxHash))
			return
		}
		s.logger.Error("finality watch failed",
			zap.String("id", tx.ID), zap.String("tx_hash", tx.TxHash), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("monitor", "finality").Inc()
		return
	}

	if receipt.Succeeded {
		s.complete(ctx, tx)
		return
	}
	s.fail(ctx, tx, []bridge.Status{bridge.StatusConfirmed},
		fmt.Sprintf("transaction reverted on %s (%s)", tx.FromChain, receipt.RawStatus))
}

// ApplyChainEvent reconciles an externally observed chain status against the
// stored transaction. Unknown hashes surface bridgestore.ErrTxNotFound so the
// webhook layer can drop them. Duplicate deliveries are no-ops.
func (s *bridgeService) ApplyChainEvent(ctx context.Context, txHash string, succeeded bool, reason string) error {
	tx, err := s.store.GetByTxHash(ctx, txHash)
	if err != nil {
		return err
	}
	if tx.Status.Terminal() {
		return nil
	}

	if succeeded {
		s.complete(ctx, tx)
		return nil
	}
	if reason == "" {
		reason = "chain reported failure"
	}
	s.fail(ctx, tx, []bridge.Status{
		bridge.StatusPending, bridge.StatusProcessing, bridge.StatusConfirmed,
	}, reason)
	return nil
}

func (s *bridgeService) GetTransaction(ctx context.Context, userID, id string) (*bridge.Transaction, error) {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, bridgestore.ErrTxNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "transaction not found")
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	// Do not reveal other users' transactions, not even their existence.
	if tx.UserID != userID {
		return nil, apperrors.ResourceNotFoundError(bridgestore.ErrTxNotFound, "transaction not found")
	}
	return tx, nil
}

func (s *bridgeService) ListTransactions(ctx context.Context, userID string, page, limit int) (*bridge.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	txs, total, err := s.store.ListByUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return &bridge.Page{
		Data:    txs,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasNext: page*limit < total,
		HasPrev: page > 1,
	}, nil
}

func (s *bridgeService) EstimateBridge(ctx context.Context, req *bridge.EstimateRequest) (*bridge.Estimate, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.BadRequestError(err, "missing required fields")
	}
	if err := validateRoute(req.FromChain, req.ToChain); err != nil {
		return nil, err
	}
	if !bridge.PositiveAmount(req.Amount) {
		return nil, apperrors.BadRequestError(nil, "amount must be a positive decimal")
	}

	est, err := s.estimator.Estimate(req.FromChain, req.ToChain, req.Amount)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "failed to estimate bridge terms")
	}
	return est, nil
}

func (s *bridgeService) Stats(ctx context.Context) (*bridge.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return stats, nil
}

// complete applies the completion transition and records timing. Only the
// first caller wins; the rest see applied=false and back off silently.
func (s *bridgeService) complete(ctx context.Context, tx *bridge.Transaction) {
	completedAt := time.Now().UTC()
	actual := int64(completedAt.Sub(tx.CreatedAt).Seconds())

	applied, err := s.store.Complete(ctx, tx.ID, completedAt, actual)
	if err != nil {
		s.logger.Error("failed to complete transaction",
			zap.String("id", tx.ID), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("lifecycle", "complete").Inc()
		return
	}
	if !applied {
		return
	}

	tx.Status = bridge.StatusCompleted
	tx.CompletedAt = &completedAt
	tx.ActualTime = &actual

	s.logger.Info("bridge transaction completed",
		zap.String("id", tx.ID),
		zap.Int64("actual_time_seconds", actual),
	)
	metrics.TransactionsTotal.WithLabelValues(
		string(tx.FromChain), string(tx.ToChain), string(bridge.StatusCompleted)).Inc()
	metrics.TransactionDuration.WithLabelValues(
		string(tx.FromChain), string(tx.ToChain)).Observe(float64(actual))
	s.notify(tx)
}

func (s *bridgeService) fail(ctx context.Context, tx *bridge.Transaction, from []bridge.Status, reason string) {
	applied, err := s.store.MarkFailed(ctx, tx.ID, from, reason)
	if err != nil {
		s.logger.Error("failed to mark transaction failed",
			zap.String("id", tx.ID), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("lifecycle", "fail").Inc()
		return
	}
	if !applied {
		return
	}

	tx.Status = bridge.StatusFailed
	tx.ErrorMessage = reason

	s.logger.Warn("bridge transaction failed",
		zap.String("id", tx.ID),
		zap.String("reason", reason),
	)
	metrics.TransactionsTotal.WithLabelValues(
		string(tx.FromChain), string(tx.ToChain), string(bridge.StatusFailed)).Inc()
	s.notify(tx)
}

func (s *bridgeService) notify(tx *bridge.Transaction) {
	if s.notifier == nil {
		return
	}
	s.notifier.TransactionUpdated(tx)
}

func validateRoute(from, to bridge.Chain) error {
	if !from.Valid() {
		return apperrors.BadRequestError(nil, fmt.Sprintf("unsupported source chain %q", from))
	}
	if !to.Valid() {
		return apperrors.BadRequestError(nil, fmt.Sprintf("unsupported destination chain %q", to))
	}
	if from == to {
		return apperrors.BadRequestError(ErrSameChain, "source and destination chains must differ")
	}
	return nil
}
