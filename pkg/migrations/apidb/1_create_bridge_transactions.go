package apidb

import (
	"context"
	"log"

	"github.com/starkbridge/middleware/pkg/bridgestore"
	mghelper "github.com/starkbridge/middleware/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating bridge_transactions table...")
		if err := mghelper.CreateSchema(ctx, db, &bridgestore.TransactionDao{}); err != nil {
			return err
		}
		// Create indexes
		if err := mghelper.CreateModelIndexes(ctx, db, &bridgestore.TransactionDao{}, "user_id", "status"); err != nil {
			return err
		}
		return mghelper.CreateModelUniqueIndexes(ctx, db, &bridgestore.TransactionDao{}, "tx_hash")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping bridge_transactions table...")
		return mghelper.DropTables(ctx, db, &bridgestore.TransactionDao{})
	})
}
