package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/starkbridge/middleware/pkg/cache"
	"github.com/starkbridge/middleware/pkg/config"
	"github.com/starkbridge/middleware/pkg/pricefeed"
	"github.com/starkbridge/middleware/pkg/token"
)

type mockStore struct {
	GetByAddressFn func(ctx context.Context, address string) (*token.Token, error)
	ListActiveFn   func(ctx context.Context) ([]*token.Token, error)
	UpdatePriceFn  func(ctx context.Context, update *token.PriceUpdate) error
}

func (m *mockStore) GetByAddress(ctx context.Context, address string) (*token.Token, error) {
	return m.GetByAddressFn(ctx, address)
}

func (m *mockStore) ListActive(ctx context.Context) ([]*token.Token, error) {
	return m.ListActiveFn(ctx)
}

func (m *mockStore) UpdatePrice(ctx context.Context, update *token.PriceUpdate) error {
	return m.UpdatePriceFn(ctx, update)
}

type mockQuoter struct {
	QuotesFn func(ctx context.Context, symbols []string) (map[string]pricefeed.Quote, error)
}

func (m *mockQuoter) Quotes(ctx context.Context, symbols []string) (map[string]pricefeed.Quote, error) {
	return m.QuotesFn(ctx, symbols)
}

type mockNotifier struct {
	mu      sync.Mutex
	updates []*token.PriceUpdate
}

func (m *mockNotifier) PriceUpdated(update *token.PriceUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, update)
}

func (m *mockNotifier) all() []*token.PriceUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*token.PriceUpdate(nil), m.updates...)
}

// memCache is an in-memory Cache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, cache.ErrMiss
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func testToken() *token.Token {
	return &token.Token{
		Address:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		ChainID:  1,
		Symbol:   "USDC",
		Name:     "USD Coin",
		Decimals: 6,
		IsActive: true,
		Price:    1.0,
	}
}

func feedConfig() config.PriceFeedConfig {
	return config.PriceFeedConfig{
		RefreshInterval: time.Minute,
		CacheTTL:        time.Minute,
	}
}

func TestGetTokenCachesResult(t *testing.T) {
	tok := testToken()
	calls := 0
	store := &mockStore{
		GetByAddressFn: func(_ context.Context, address string) (*token.Token, error) {
			calls++
			assert.Equal(t, tok.Address, address)
			return tok, nil
		},
	}
	svc := New(store, newMemCache(), nil, nil, feedConfig(), zap.NewNop())

	got, err := svc.GetToken(context.Background(), tok.Address)
	require.NoError(t, err)
	assert.Equal(t, tok.Symbol, got.Symbol)

	got, err = svc.GetToken(context.Background(), tok.Address)
	require.NoError(t, err)
	assert.Equal(t, tok.Symbol, got.Symbol)
	assert.Equal(t, 1, calls)
}

func TestGetTokenCacheFailureFallsThrough(t *testing.T) {
	tok := testToken()
	store := &mockStore{
		GetByAddressFn: func(_ context.Context, _ string) (*token.Token, error) {
			return tok, nil
		},
	}
	svc := New(store, &failingCache{}, nil, nil, feedConfig(), zap.NewNop())

	got, err := svc.GetToken(context.Background(), tok.Address)
	require.NoError(t, err)
	assert.Equal(t, tok.Address, got.Address)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("redis down")
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis down")
}

func (failingCache) Delete(context.Context, string) error {
	return errors.New("redis down")
}

func TestGetTokenNotFound(t *testing.T) {
	store := &mockStore{
		GetByAddressFn: func(_ context.Context, _ string) (*token.Token, error) {
			return nil, token.ErrNotFound
		},
	}
	svc := New(store, newMemCache(), nil, nil, feedConfig(), zap.NewNop())

	_, err := svc.GetToken(context.Background(), "0xdead")
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestApplyPriceUpdateInvalidatesCache(t *testing.T) {
	tok := testToken()
	mem := newMemCache()
	stored := false
	store := &mockStore{
		UpdatePriceFn: func(_ context.Context, update *token.PriceUpdate) error {
			stored = true
			assert.Equal(t, tok.Address, update.Address)
			return nil
		},
	}
	notifier := &mockNotifier{}
	svc := New(store, mem, nil, notifier, feedConfig(), zap.NewNop())

	data, err := json.Marshal(tok)
	require.NoError(t, err)
	require.NoError(t, mem.Set(context.Background(), tokenKeyPrefix+tok.Address, data, time.Minute))
	require.NoError(t, mem.Set(context.Background(), tokenListKey, []byte("[]"), time.Minute))

	err = svc.ApplyPriceUpdate(context.Background(), &token.PriceUpdate{
		Address: tok.Address,
		Price:   1.01,
	})
	require.NoError(t, err)
	assert.True(t, stored)

	_, err = mem.Get(context.Background(), tokenKeyPrefix+tok.Address)
	assert.ErrorIs(t, err, cache.ErrMiss)
	_, err = mem.Get(context.Background(), tokenListKey)
	assert.ErrorIs(t, err, cache.ErrMiss)

	require.Len(t, notifier.all(), 1)
	assert.Equal(t, 1.01, notifier.all()[0].Price)
}

func TestRefreshPricesUpdatesAllQuotedTokens(t *testing.T) {
	usdc := testToken()
	eth := &token.Token{Address: "0x0", ChainID: 1, Symbol: "ETH", Name: "Ether", Decimals: 18, IsActive: true}

	var mu sync.Mutex
	updated := map[string]float64{}
	store := &mockStore{
		ListActiveFn: func(_ context.Context) ([]*token.Token, error) {
			return []*token.Token{usdc, eth}, nil
		},
		UpdatePriceFn: func(_ context.Context, update *token.PriceUpdate) error {
			mu.Lock()
			defer mu.Unlock()
			updated[update.Address] = update.Price
			return nil
		},
	}
	quoter := &mockQuoter{
		QuotesFn: func(_ context.Context, symbols []string) (map[string]pricefeed.Quote, error) {
			assert.ElementsMatch(t, []string{"USDC", "ETH"}, symbols)
			return map[string]pricefeed.Quote{
				"USDC": {Symbol: "USDC", Price: 0.999},
				"ETH":  {Symbol: "ETH", Price: 3150.42},
			}, nil
		},
	}
	notifier := &mockNotifier{}
	svc := New(store, newMemCache(), quoter, notifier, feedConfig(), zap.NewNop())

	svc.refreshPrices()

	assert.Equal(t, 0.999, updated[usdc.Address])
	assert.Equal(t, 3150.42, updated[eth.Address])
	assert.Len(t, notifier.all(), 2)
}

func TestRefreshPricesMatchesMixedCaseSymbols(t *testing.T) {
	steth := &token.Token{Address: "0xsteth", ChainID: 1, Symbol: "stETH", Name: "Lido Staked Ether", Decimals: 18, IsActive: true}

	updates := 0
	store := &mockStore{
		ListActiveFn: func(_ context.Context) ([]*token.Token, error) {
			return []*token.Token{steth}, nil
		},
		UpdatePriceFn: func(_ context.Context, update *token.PriceUpdate) error {
			updates++
			assert.Equal(t, steth.Address, update.Address)
			assert.Equal(t, 2000.5, update.Price)
			return nil
		},
	}

	// Go through the real feed client, which keys its result map by
	// upper-cased symbol regardless of the catalog's casing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "stETH", r.URL.Query().Get("symbols"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"symbol":"stETH","price":2000.5,"change_24h":-1.2,"volume_24h":"120000"}]}`))
	}))
	defer srv.Close()

	cfg := feedConfig()
	cfg.BaseURL = srv.URL
	quoter := pricefeed.NewClient(cfg)

	svc := New(store, newMemCache(), quoter, nil, cfg, zap.NewNop())

	svc.refreshPrices()
	assert.Equal(t, 1, updates)
}

func TestRefreshPricesSkipsUnquotedSymbols(t *testing.T) {
	usdc := testToken()
	updates := 0
	store := &mockStore{
		ListActiveFn: func(_ context.Context) ([]*token.Token, error) {
			return []*token.Token{usdc}, nil
		},
		UpdatePriceFn: func(_ context.Context, _ *token.PriceUpdate) error {
			updates++
			return nil
		},
	}
	quoter := &mockQuoter{
		QuotesFn: func(_ context.Context, _ []string) (map[string]pricefeed.Quote, error) {
			return map[string]pricefeed.Quote{}, nil
		},
	}
	svc := New(store, newMemCache(), quoter, nil, feedConfig(), zap.NewNop())

	svc.refreshPrices()
	assert.Equal(t, 0, updates)
}
