package tokenstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/starkbridge/middleware/pkg/token"
)

// TokenDao is a data access object that maps directly to the 'tokens' table in PostgreSQL.
type TokenDao struct {
	bun.BaseModel `bun:"table:tokens,alias:t"`
	Address       string    `bun:"address,pk,type:varchar(66)"`
	ChainID       int64     `bun:"chain_id,notnull"`
	Symbol        string    `bun:"symbol,notnull,type:varchar(16)"`
	Name          string    `bun:"name,notnull,type:varchar(64)"`
	Decimals      int       `bun:"decimals,notnull"`
	LogoURI       *string   `bun:"logo_uri,type:varchar(255)"`
	IsActive      bool      `bun:"is_active,notnull,default:true"`
	Price         *float64  `bun:"price"`
	Change24h     *float64  `bun:"change_24h"`
	Volume24h     *string   `bun:"volume_24h,type:numeric(38,18)"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

func toTokenDao(tok *token.Token) *TokenDao {
	dao := &TokenDao{
		Address:   tok.Address,
		ChainID:   tok.ChainID,
		Symbol:    tok.Symbol,
		Name:      tok.Name,
		Decimals:  tok.Decimals,
		IsActive:  tok.IsActive,
		UpdatedAt: tok.UpdatedAt,
	}
	if tok.LogoURI != "" {
		dao.LogoURI = &tok.LogoURI
	}
	if tok.Price != 0 {
		dao.Price = &tok.Price
	}
	if tok.Change24h != 0 {
		dao.Change24h = &tok.Change24h
	}
	if tok.Volume24h != "" {
		dao.Volume24h = &tok.Volume24h
	}
	return dao
}

func toToken(dao *TokenDao) *token.Token {
	tok := &token.Token{
		Address:   dao.Address,
		ChainID:   dao.ChainID,
		Symbol:    dao.Symbol,
		Name:      dao.Name,
		Decimals:  dao.Decimals,
		IsActive:  dao.IsActive,
		UpdatedAt: dao.UpdatedAt,
	}
	if dao.LogoURI != nil {
		tok.LogoURI = *dao.LogoURI
	}
	if dao.Price != nil {
		tok.Price = *dao.Price
	}
	if dao.Change24h != nil {
		tok.Change24h = *dao.Change24h
	}
	if dao.Volume24h != nil {
		tok.Volume24h = *dao.Volume24h
	}
	return tok
}
