package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Store    StoreConfig
	Log      LogConfig
}

// ServerConfig represents the fetch server configuration
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int // Port for Prometheus metrics HTTP server
}

// CacheConfig represents the link payload cache configuration
type CacheConfig struct {
	Enabled      bool
	MaxSizeBytes int64
	Metrics      bool
	TTLMinutes   int
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// StoreConfig selects the fetch adapter and the schema the server serves.
type StoreConfig struct {
	Adapter             string // "postgres" or "memory"
	TenantID            string
	SchemaPath          string
	FixturesPath        string // memory adapter only
	FetchTimeoutSeconds int
}

// FetchTimeout returns the default deadline applied to adapter calls.
func (s StoreConfig) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string
}

// SlogLevel maps the configured level name to a slog level; unknown names fall back to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProjectRoot finds the project root directory by looking for go.mod
func ProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	projectRoot, err := ProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot)

	// The file is optional; environment variables take precedence over it.
	_ = viper.ReadInConfig()
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 50051)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "kizuna")
	viper.SetDefault("DB_NAME", "kizuna_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_SIZE_BYTES", 64*1024*1024) // 64MB
	viper.SetDefault("CACHE_METRICS", true)
	viper.SetDefault("CACHE_TTL_MINUTES", 5)

	viper.SetDefault("STORE_ADAPTER", "postgres")
	viper.SetDefault("STORE_TENANT_ID", "default")
	viper.SetDefault("STORE_SCHEMA_PATH", "schema.kzn")
	viper.SetDefault("STORE_FIXTURES_PATH", "")
	viper.SetDefault("STORE_FETCH_TIMEOUT_SECONDS", 10)

	viper.SetDefault("LOG_LEVEL", "info")

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("SERVER_HOST"),
			Port:        viper.GetInt("SERVER_PORT"),
			MetricsPort: viper.GetInt("METRICS_PORT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:      viper.GetBool("CACHE_ENABLED"),
			MaxSizeBytes: viper.GetInt64("CACHE_MAX_SIZE_BYTES"),
			Metrics:      viper.GetBool("CACHE_METRICS"),
			TTLMinutes:   viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Store: StoreConfig{
			Adapter:             viper.GetString("STORE_ADAPTER"),
			TenantID:            viper.GetString("STORE_TENANT_ID"),
			SchemaPath:          viper.GetString("STORE_SCHEMA_PATH"),
			FixturesPath:        viper.GetString("STORE_FIXTURES_PATH"),
			FetchTimeoutSeconds: viper.GetInt("STORE_FETCH_TIMEOUT_SECONDS"),
		},
		Log: LogConfig{
			Level: viper.GetString("LOG_LEVEL"),
		},
	}

	switch config.Store.Adapter {
	case "postgres":
		// DB_PASSWORD is required for security
		if config.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
		}
	case "memory":
		if config.Store.FixturesPath == "" {
			return nil, fmt.Errorf("STORE_FIXTURES_PATH is required for the memory adapter")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_ADAPTER %q (want postgres or memory)", config.Store.Adapter)
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
