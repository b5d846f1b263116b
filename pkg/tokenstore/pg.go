package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/starkbridge/middleware/pkg/token"
)

type pgStore struct {
	db *bun.DB
}

func NewPostgresStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) GetByAddress(ctx context.Context, address string) (*token.Token, error) {
	dao := new(TokenDao)
	err := s.db.NewSelect().Model(dao).Where("address = ?", address).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, token.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token %s: %w", address, err)
	}
	return toToken(dao), nil
}

func (s *pgStore) ListActive(ctx context.Context) ([]*token.Token, error) {
	var daos []*TokenDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("is_active = TRUE").
		Order("symbol ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	tokens := make([]*token.Token, len(daos))
	for i, dao := range daos {
		tokens[i] = toToken(dao)
	}
	return tokens, nil
}

// UpdatePrice stores the latest market data for a token. An unknown address is
// not an error, the caller decides whether a miss matters.
func (s *pgStore) UpdatePrice(ctx context.Context, update *token.PriceUpdate) error {
	q := s.db.NewUpdate().
		Model((*TokenDao)(nil)).
		Set("price = ?", update.Price).
		Set("change_24h = ?", update.Change24h).
		Set("updated_at = ?", update.Timestamp).
		Where("address = ?", update.Address)
	if update.Volume24h != "" {
		q = q.Set("volume_24h = ?", update.Volume24h)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update price for %s: %w", update.Address, err)
	}
	return nil
}

func (s *pgStore) Upsert(ctx context.Context, tok *token.Token) error {
	dao := toTokenDao(tok)
	if dao.UpdatedAt.IsZero() {
		dao.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (address) DO UPDATE").
		Set("symbol = EXCLUDED.symbol").
		Set("name = EXCLUDED.name").
		Set("decimals = EXCLUDED.decimals").
		Set("logo_uri = EXCLUDED.logo_uri").
		Set("is_active = EXCLUDED.is_active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert token %s: %w", tok.Address, err)
	}
	return nil
}
