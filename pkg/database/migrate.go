package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	goosedb "github.com/pressly/goose/v3/database"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

func dialect(driverName string) (goosedb.Dialect, string) {
	if driverName == "sqlite" {
		return goosedb.DialectSQLite3, "sqlite"
	}
	return goosedb.DialectPostgres, "postgres"
}

// RunMigrations applies the pending embedded migrations for the db's dialect.
// Applied versions are tracked by goose in goose_db_version.
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	d, dir := dialect(db.DriverName())
	migrationFS, err := fs.Sub(migrationFiles, path.Join("migrations", dir))
	if err != nil {
		return fmt.Errorf("failed to create sub filesystem: %w", err)
	}

	provider, err := goose.NewProvider(d, db.DB, migrationFS)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
