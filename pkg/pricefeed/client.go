// Package pricefeed fetches spot prices and 24h market statistics from an
// external market data API.
package pricefeed

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/starkbridge/middleware/pkg/config"
)

// Quote is a single market data point for a token symbol.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Volume24h string  `json:"volume_24h"`
}

type quotesResponse struct {
	Data []Quote `json:"data"`
}

type Client struct {
	http *resty.Client
}

func NewClient(cfg config.PriceFeedConfig) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout)
	if cfg.APIKey != "" {
		http.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &Client{http: http}
}

// Quotes returns market data for the given symbols, keyed by upper-cased symbol.
// Symbols unknown to the provider are simply absent from the result.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}

	var result quotesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		SetResult(&result).
		Get("/v1/quotes")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quotes: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("price feed returned status %d", resp.StatusCode())
	}

	quotes := make(map[string]Quote, len(result.Data))
	for _, q := range result.Data {
		quotes[strings.ToUpper(q.Symbol)] = q
	}
	return quotes, nil
}
