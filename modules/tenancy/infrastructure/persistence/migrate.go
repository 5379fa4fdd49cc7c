package persistence

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenancy/pkg/logging"
)

//go:embed schema/*.sql
var MigrationFiles embed.FS

// Migrate applies every pending schema migration. goose runs on database/sql, so the
// pool's connection config is bridged through the pgx stdlib driver for the duration.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *logrus.Entry) error {
	logger = logging.OrNop(logger)
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer func() { _ = sqlDB.Close() }()

	provider, err := newMigrationProvider(sqlDB, logger)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}
	for _, res := range results {
		logger.WithField("version", res.Source.Version).Info("migration applied")
	}
	return nil
}

func newMigrationProvider(db *sql.DB, logger *logrus.Entry) (*goose.Provider, error) {
	schema, err := fs.Sub(MigrationFiles, "schema")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open embedded schema")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, schema, goose.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migration provider")
	}
	return provider, nil
}
