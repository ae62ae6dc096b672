package migrations

import (
	"context"
	"fmt"

	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewCreateTable().
			Model((*types.User)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create users table: %w", err)
		}

		_, err = db.NewCreateIndex().
			Model((*types.User)(nil)).
			Index("idx_users_character_id").
			Column("character_id").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create character id index: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().
			Model((*types.User)(nil)).
			IfExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop users table: %w", err)
		}

		return nil
	})
}
