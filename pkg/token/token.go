// Package token holds the domain model for the bridged token catalog.
package token

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a token address is not in the catalog.
var ErrNotFound = errors.New("token not found")

// Token is a catalog entry for a bridgeable asset. The lifecycle core only
// reads symbol/decimals/active; catalog maintenance is external.
type Token struct {
	Address   string    `json:"address"`
	ChainID   int64     `json:"chainId"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Decimals  int       `json:"decimals"`
	LogoURI   string    `json:"logoUri,omitempty"`
	IsActive  bool      `json:"isActive"`
	Price     float64   `json:"price,omitempty"`
	Change24h float64   `json:"change24h,omitempty"`
	Volume24h string    `json:"volume24h,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PriceUpdate is a market-data event for one token.
type PriceUpdate struct {
	Address   string    `json:"tokenAddress"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change24h"`
	Volume24h string    `json:"volume24h,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
