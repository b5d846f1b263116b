package apidb

import (
	"context"
	"log"

	"github.com/starkbridge/middleware/pkg/tokenstore"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("seeding tokens table...")

		seed := []*tokenstore.TokenDao{
			{
				Address:  "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee",
				ChainID:  1,
				Symbol:   "ETH",
				Name:     "Ether",
				Decimals: 18,
				IsActive: true,
			},
			{
				Address:  "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
				ChainID:  1,
				Symbol:   "USDC",
				Name:     "USD Coin",
				Decimals: 6,
				IsActive: true,
			},
			{
				Address:  "0x04718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d",
				ChainID:  1,
				Symbol:   "STRK",
				Name:     "Starknet Token",
				Decimals: 18,
				IsActive: true,
			},
		}

		for _, dao := range seed {
			// ON CONFLICT keeps reruns idempotent
			if _, err := db.NewInsert().
				Model(dao).
				On("CONFLICT (address) DO NOTHING").
				Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("removing seed data from tokens table...")
		_, err := db.NewDelete().
			Model((*tokenstore.TokenDao)(nil)).
			Where("symbol IN ('ETH', 'USDC', 'STRK')").
			Exec(ctx)
		return err
	})
}
