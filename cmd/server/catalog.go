package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/simulacroapp/simulacro/internal/db"
	"github.com/simulacroapp/simulacro/internal/services"
	"github.com/simulacroapp/simulacro/internal/utils"
)

// openCatalog opens the SQLite scenario library, applies the schema, seeds
// the bundled scenarios on first run and wires the optional Redis layer.
// The concrete catalog is returned alongside for the listing endpoint.
func openCatalog(ctx context.Context) (services.ScenarioCatalog, *db.SQLiteCatalog, error) {
	path := utils.SafeEnv("SIMULACRO_CATALOG_PATH", "data/catalog.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create catalog dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
	sqliteDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := sqliteDB.PingContext(ctx); err != nil {
		return nil, nil, fmt.Errorf("ping catalog: %w", err)
	}

	if err := db.RunMigrations(sqliteDB, os.Getenv("SIMULACRO_MIGRATIONS_DIR")); err != nil {
		return nil, nil, fmt.Errorf("migrate catalog: %w", err)
	}
	seeded, err := db.SeedScenarios(sqliteDB)
	if err != nil {
		return nil, nil, fmt.Errorf("seed catalog: %w", err)
	}
	if seeded > 0 {
		slog.Info("seeded bundled scenarios", "count", seeded)
	}

	catalog, err := db.NewSQLiteCatalog(sqliteDB)
	if err != nil {
		return nil, nil, err
	}
	return wrapCache(catalog), catalog, nil
}
