package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/asakaida/kizuna/internal/infrastructure/config"
	"github.com/asakaida/kizuna/internal/infrastructure/database"
	pgrepo "github.com/asakaida/kizuna/internal/repositories/postgres"
	"github.com/asakaida/kizuna/internal/services"
)

var (
	envFlag string
	cfg     *config.Config
	pg      *database.Postgres
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for kizuna",
	Long: `Database migration tool for kizuna.
Manages the PostgreSQL tables behind the record store using golang-migrate
and loads model schemas.`,
	PersistentPreRun:  setupDatabase,
	PersistentPostRun: closeDatabase,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: withMigrate(func(m *migrate.Migrate, _ []string) error {
		return report(m.Up(), "Migration up completed successfully", "No migrations to apply")
	}),
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	Run: withMigrate(func(m *migrate.Migrate, args []string) error {
		steps := 1
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			steps = n
		}
		return report(m.Steps(-steps),
			fmt.Sprintf("Migration down completed successfully (rolled back %d migration(s))", steps),
			"No migrations to rollback")
	}),
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Args:  cobra.ExactArgs(1),
	Run: withMigrate(func(m *migrate.Migrate, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return report(m.Migrate(uint(version)),
			fmt.Sprintf("Migration goto %d completed successfully", version),
			fmt.Sprintf("Already at version %d", version))
	}),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	Run: withMigrate(func(m *migrate.Migrate, _ []string) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("Current version: No migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		if dirty {
			log.Printf("Current version: %d (dirty - migration may have failed)", version)
		} else {
			log.Printf("Current version: %d", version)
		}
		return nil
	}),
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Args:  cobra.ExactArgs(1),
	Run: withMigrate(func(m *migrate.Migrate, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		if err := m.Force(version); err != nil {
			return err
		}
		log.Printf("Migration forced to version %d", version)
		return nil
	}),
}

var schemaCmd = &cobra.Command{
	Use:   "schema [file]",
	Short: "Store a model schema as the tenant's latest version",
	Long: `Parse and validate a model DSL file and store it as the latest schema version
of the configured tenant. Defaults to STORE_SCHEMA_PATH. Nothing is written when
the file matches the latest stored version.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := cfg.Store.SchemaPath
		if len(args) > 0 {
			path = args[0]
		}
		svc := services.NewSchemaService(pgrepo.NewPostgresSchemaRepository(pg.DB))
		schema, err := svc.LoadFile(context.Background(), cfg.Store.TenantID, path)
		if err != nil {
			log.Fatalf("Failed to load schema: %v", err)
		}
		log.Printf("Schema %s is version %s of tenant %s (%d entities)",
			path, schema.Version, cfg.Store.TenantID, len(schema.Entities))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	rootCmd.AddCommand(upCmd, downCmd, gotoCmd, versionCmd, forceCmd, schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) {
	log.Printf("Using environment: %s", envFlag)

	if err := config.InitConfig(envFlag); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pg, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Printf("Connected to database: %s@%s:%d/%s",
		cfg.Database.User,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database)
}

func closeDatabase(cmd *cobra.Command, args []string) {
	if pg != nil {
		pg.Close()
	}
}

// withMigrate opens a migrate instance on the project's migrations for fn
func withMigrate(fn func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		root, err := config.ProjectRoot()
		if err != nil {
			log.Fatalf("Failed to find project root: %v", err)
		}
		path := filepath.Join(root, database.MigrationsPath)
		log.Printf("Using migrations path: %s", path)

		m, err := pg.NewMigrate(path)
		if err != nil {
			log.Fatalf("Failed to create migrate instance: %v", err)
		}
		defer m.Close()

		if err := fn(m, args); err != nil {
			log.Fatalf("%s failed: %v", cmd.Name(), err)
		}
	}
}

// report logs the outcome of a migration step; ErrNoChange is not an error
func report(err error, done, unchanged string) error {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Println(unchanged)
	case err != nil:
		return err
	default:
		log.Println(done)
	}
	return nil
}
