package postgres

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/asakaida/kizuna/internal/infrastructure/config"
	"github.com/asakaida/kizuna/internal/infrastructure/database"
	_ "github.com/lib/pq"
)

// SetupTestDB connects to the test database and runs migrations.
// The test is skipped when no database is configured or reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if err := config.InitConfig("test"); err != nil {
		t.Fatalf("Failed to init config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("PostgreSQL not configured: %v", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Skipf("PostgreSQL not reachable: %v", err)
	}

	if err := pg.RunMigrations(filepath.Join("..", "..", "..", database.MigrationsPath)); err != nil {
		pg.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return pg.DB
}

// CleanupTestDB removes test data and closes the connection.
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	for _, table := range []string{"relations", "records", "schemas"} {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("Warning: Failed to clean up table %s: %v", table, err)
		}
	}

	if err := db.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}
