package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// SchemaModels lists every table the module owns, in creation order.
func SchemaModels() []any {
	return []any{
		(*PermissionTier)(nil),
		(*User)(nil),
		(*PasswordRecovery)(nil),
		(*ActivityRecord)(nil),
	}
}

// CreateSchema creates the module's tables if they do not exist yet. It is
// meant for local development and tests; production deployments run real
// migrations.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range SchemaModels() {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			WithForeignKeys().
			Exec(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create schema")
		}
	}
	return nil
}

// SeedTiers inserts the fixed permission tiers, skipping names that already
// exist.
func SeedTiers(ctx context.Context, db *bun.DB) error {
	for _, name := range AllTiers() {
		tier := &PermissionTier{Name: name}
		_, err := db.NewInsert().
			Model(tier).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to seed permission tiers")
		}
	}
	return nil
}

// Bootstrap combines table creation and tier seeding.
func Bootstrap(ctx context.Context, db *bun.DB) error {
	if err := CreateSchema(ctx, db); err != nil {
		return err
	}
	return SeedTiers(ctx, db)
}
