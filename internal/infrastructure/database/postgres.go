package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/asakaida/kizuna/internal/infrastructure/config"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// MigrationsPath is the migrations directory relative to the project root.
const MigrationsPath = "internal/infrastructure/database/migrations/postgres"

// Postgres represents PostgreSQL connection
type Postgres struct {
	DB  *sql.DB
	DSN string // kept for pq.Listener, which opens its own connection
}

// NewPostgres opens a connection pool and verifies it with a ping.
func NewPostgres(cfg *config.DatabaseConfig) (*Postgres, error) {
	dsn := cfg.ConnectionString()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{DB: db, DSN: dsn}, nil
}

// NewMigrateDriver wraps an open connection as a golang-migrate database driver.
func NewMigrateDriver(db *sql.DB) (migratedb.Driver, error) {
	return migratepg.WithInstance(db, &migratepg.Config{})
}

// NewMigrate builds a migrate instance reading migrations from the given directory.
func (p *Postgres) NewMigrate(migrationsPath string) (*migrate.Migrate, error) {
	driver, err := NewMigrateDriver(p.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies every pending migration.
func (p *Postgres) RunMigrations(migrationsPath string) error {
	m, err := p.NewMigrate(migrationsPath)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// HealthCheck checks if the database connection is healthy
func (p *Postgres) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (p *Postgres) Close() error {
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}
