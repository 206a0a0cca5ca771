package rafflemigrations

import (
	"context"
	"fmt"

	raffledb "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/repositories"
	"github.com/uptrace/bun"
)

var raffleModels = []any{
	(*raffledb.Round)(nil),
	(*raffledb.Entry)(nil),
	(*raffledb.Payout)(nil),
	(*raffledb.Balance)(nil),
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating raffle tables...")
		for _, model := range raffleModels {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		if _, err := db.NewCreateIndex().
			Model((*raffledb.Round)(nil)).
			Index("idx_raffle_rounds_settled_created").
			Column("settled", "created_at").
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create raffle_rounds index: %w", err)
		}

		fmt.Println("Raffle tables created successfully!")
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping raffle tables...")
		for i := len(raffleModels) - 1; i >= 0; i-- {
			if _, err := db.NewDropTable().Model(raffleModels[i]).IfExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop table for %T: %w", raffleModels[i], err)
			}
		}
		fmt.Println("Raffle tables dropped successfully!")
		return nil
	})
}
