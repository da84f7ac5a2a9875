package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrate applies every pending migration shipped with the package.
func Migrate(ctx context.Context, db *bun.DB, logger Logger) error {
	migrator, err := newMigrator(ctx, db)
	if err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations")
	}

	logger = normalizeLogger(logger)
	if group.IsZero() {
		logger.Info("no new migrations to run")
		return nil
	}
	logger.Info("migrated", "group", group.String())
	return nil
}

// Rollback reverts the last applied migration group.
func Rollback(ctx context.Context, db *bun.DB, logger Logger) error {
	migrator, err := newMigrator(ctx, db)
	if err != nil {
		return err
	}

	group, err := migrator.Rollback(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to roll back migrations")
	}

	logger = normalizeLogger(logger)
	if group.IsZero() {
		logger.Info("no groups to roll back")
		return nil
	}
	logger.Info("rolled back", "group", group.String())
	return nil
}

func newMigrator(ctx context.Context, db *bun.DB) (*migrate.Migrator, error) {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(GetMigrationsFS()); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init migration tables")
	}
	return migrator, nil
}
