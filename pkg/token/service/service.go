package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/starkbridge/middleware/internal/metrics"
	"github.com/starkbridge/middleware/pkg/cache"
	"github.com/starkbridge/middleware/pkg/config"
	"github.com/starkbridge/middleware/pkg/pricefeed"
	"github.com/starkbridge/middleware/pkg/token"
)

const (
	tokenKeyPrefix = "token:"
	tokenListKey   = "tokens:active"
)

// Store is the persistence surface the token service needs.
type Store interface {
	GetByAddress(ctx context.Context, address string) (*token.Token, error)
	ListActive(ctx context.Context) ([]*token.Token, error)
	UpdatePrice(ctx context.Context, update *token.PriceUpdate) error
}

// Quoter fetches current market data for a set of symbols.
type Quoter interface {
	Quotes(ctx context.Context, symbols []string) (map[string]pricefeed.Quote, error)
}

// Notifier pushes price updates to connected clients.
type Notifier interface {
	PriceUpdated(update *token.PriceUpdate)
}

type Service struct {
	store    Store
	cache    cache.Cache
	quoter   Quoter
	notifier Notifier
	cacheTTL time.Duration
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(
	store Store,
	cch cache.Cache,
	quoter Quoter,
	notifier Notifier,
	cfg config.PriceFeedConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:    store,
		cache:    cch,
		quoter:   quoter,
		notifier: notifier,
		cacheTTL: cfg.CacheTTL,
		interval: cfg.RefreshInterval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// GetToken returns the token registered at the given address. Cache failures
// are logged and fall through to the store.
func (s *Service) GetToken(ctx context.Context, address string) (*token.Token, error) {
	key := tokenKeyPrefix + address
	if data, err := s.cache.Get(ctx, key); err == nil {
		tok := new(token.Token)
		if err := json.Unmarshal(data, tok); err == nil {
			return tok, nil
		}
		s.logger.Warn("failed to decode cached token", zap.String("address", address))
	} else if err != cache.ErrMiss {
		s.logger.Warn("token cache read failed", zap.Error(err))
	}

	tok, err := s.store.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, key, tok)
	return tok, nil
}

// ListTokens returns all active tokens.
func (s *Service) ListTokens(ctx context.Context) ([]*token.Token, error) {
	if data, err := s.cache.Get(ctx, tokenListKey); err == nil {
		var tokens []*token.Token
		if err := json.Unmarshal(data, &tokens); err == nil {
			return tokens, nil
		}
		s.logger.Warn("failed to decode cached token list")
	} else if err != cache.ErrMiss {
		s.logger.Warn("token cache read failed", zap.Error(err))
	}

	tokens, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, tokenListKey, tokens)
	return tokens, nil
}

// ApplyPriceUpdate persists a price update, invalidates cached entries and
// notifies subscribers.
func (s *Service) ApplyPriceUpdate(ctx context.Context, update *token.PriceUpdate) error {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}
	if err := s.store.UpdatePrice(ctx, update); err != nil {
		return fmt.Errorf("failed to apply price update: %w", err)
	}
	s.invalidate(ctx, update.Address)
	metrics.PriceUpdates.WithLabelValues("webhook").Inc()
	if s.notifier != nil {
		s.notifier.PriceUpdated(update)
	}
	return nil
}

// Start launches the periodic price refresh loop.
func (s *Service) Start() {
	go s.run()
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Service) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.refreshPrices()
		}
	}
}

func (s *Service) refreshPrices() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tokens, err := s.store.ListActive(ctx)
	if err != nil {
		s.logger.Error("price refresh failed to list tokens", zap.Error(err))
		return
	}
	if len(tokens) == 0 {
		return
	}

	symbols := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		symbols = append(symbols, tok.Symbol)
	}

	quotes, err := s.quoter.Quotes(ctx, symbols)
	if err != nil {
		s.logger.Error("failed to fetch quotes", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("token_service", "price_feed").Inc()
		return
	}

	now := time.Now().UTC()
	for _, tok := range tokens {
		// Quote maps are keyed by upper-cased symbol.
		quote, ok := quotes[strings.ToUpper(tok.Symbol)]
		if !ok {
			continue
		}
		update := &token.PriceUpdate{
			Address:   tok.Address,
			Price:     quote.Price,
			Change24h: quote.Change24h,
			Volume24h: quote.Volume24h,
			Timestamp: now,
		}
		if err := s.store.UpdatePrice(ctx, update); err != nil {
			s.logger.Error("failed to store price",
				zap.String("symbol", tok.Symbol), zap.Error(err))
			continue
		}
		s.invalidate(ctx, tok.Address)
		metrics.PriceUpdates.WithLabelValues("feed").Inc()
		if s.notifier != nil {
			s.notifier.PriceUpdated(update)
		}
	}
}

func (s *Service) cachePut(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("token cache write failed", zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, address string) {
	if err := s.cache.Delete(ctx, tokenKeyPrefix+address); err != nil {
		s.logger.Warn("token cache invalidation failed", zap.Error(err))
	}
	if err := s.cache.Delete(ctx, tokenListKey); err != nil {
		s.logger.Warn("token list cache invalidation failed", zap.Error(err))
	}
}
