package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/caseload/migrations"
	"github.com/pressly/goose/v3"
)

// Migrate brings the schema up to the newest embedded migration and
// returns the resulting schema version.
func Migrate(ctx context.Context, db *sql.DB) (int64, error) {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return 0, fmt.Errorf("load migrations: %w", err)
	}
	// provider.Close would close db, which the store still owns.

	results, err := provider.Up(ctx)
	for _, res := range results {
		if res.Error != nil {
			continue
		}
		slog.Debug("migration applied",
			"component", "store",
			"version", res.Source.Version,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
