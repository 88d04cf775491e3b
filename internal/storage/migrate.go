package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"codeberg.org/tinyurl/server/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// applies pending migrations from the embedded migrations directory
func (c *Client) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(c.pool)
	defer db.Close() //nolint:errcheck,gosec // closes the wrapper only, the pool stays open

	dir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, dir)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration", "version", r.Source.Version, "duration", r.Duration.String())
	}

	return nil
}
