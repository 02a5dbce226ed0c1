package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Data source kinds
const (
	DataSourceMemory   = "memory"
	DataSourcePostgres = "postgres"
	DataSourceSQLite   = "sqlite"
	DataSourceRedis    = "redis"
	DataSourceRemote   = "remote"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig
	DataSource DataSourceConfig
	Database   DatabaseConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Remote     RemoteConfig
	Log        LogConfig
	Cache      CacheConfig
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int    // Port for Prometheus metrics HTTP server
	SchemaPath  string // Model schema DSL served by the server
}

// DataSourceConfig selects the connector models are stored with
type DataSourceConfig struct {
	Kind string // memory, postgres, sqlite, redis or remote
	Name string
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

// SQLiteConfig represents the sqlite data source
type SQLiteConfig struct {
	Path string // Database file, or ":memory:"
}

// RedisConfig represents the redis data source
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// RemoteConfig represents the upstream ModelService a remote data source forwards to
type RemoteConfig struct {
	Addr    string
	Timeout time.Duration
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level  string
	Format string // json or console
	Output string // stdout, stderr or a file path
}

// CacheConfig represents the compiled filter cache configuration
type CacheConfig struct {
	Enabled        bool
	MaxMemoryBytes int64 // Maximum memory usage in bytes (e.g., 10485760 = 10MB)
	Metrics        bool
	TTLMinutes     int // Time-to-live for cache entries in minutes
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
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

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot)

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 50051)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("SCHEMA_PATH", "")

	viper.SetDefault("DATASOURCE", DataSourceMemory)
	viper.SetDefault("DATASOURCE_NAME", "db")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "remotemodel")
	viper.SetDefault("DB_NAME", "remotemodel_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	viper.SetDefault("SQLITE_PATH", "remotemodel.db")

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_KEY_PREFIX", "remotemodel:")

	viper.SetDefault("REMOTE_ADDR", "localhost:50051")
	viper.SetDefault("REMOTE_TIMEOUT", "10s")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("LOG_OUTPUT", "stdout")

	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_MEMORY_BYTES", 10*1024*1024) // 10MB
	viper.SetDefault("CACHE_METRICS", true)
	viper.SetDefault("CACHE_TTL_MINUTES", 30)

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("SERVER_HOST"),
			Port:        viper.GetInt("SERVER_PORT"),
			MetricsPort: viper.GetInt("METRICS_PORT"),
			SchemaPath:  viper.GetString("SCHEMA_PATH"),
		},
		DataSource: DataSourceConfig{
			Kind: viper.GetString("DATASOURCE"),
			Name: viper.GetString("DATASOURCE_NAME"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("SQLITE_PATH"),
		},
		Redis: RedisConfig{
			Host:      viper.GetString("REDIS_HOST"),
			Port:      viper.GetInt("REDIS_PORT"),
			Password:  viper.GetString("REDIS_PASSWORD"),
			DB:        viper.GetInt("REDIS_DB"),
			KeyPrefix: viper.GetString("REDIS_KEY_PREFIX"),
		},
		Remote: RemoteConfig{
			Addr:    viper.GetString("REMOTE_ADDR"),
			Timeout: viper.GetDuration("REMOTE_TIMEOUT"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
			Output: viper.GetString("LOG_OUTPUT"),
		},
		Cache: CacheConfig{
			Enabled:        viper.GetBool("CACHE_ENABLED"),
			MaxMemoryBytes: viper.GetInt64("CACHE_MAX_MEMORY_BYTES"),
			Metrics:        viper.GetBool("CACHE_METRICS"),
			TTLMinutes:     viper.GetInt("CACHE_TTL_MINUTES"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks settings that depend on the selected data source
func (c *Config) Validate() error {
	switch c.DataSource.Kind {
	case DataSourceMemory:
	case DataSourcePostgres:
		// DB_PASSWORD is required for security
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres data source (set via environment variable or .env file)")
		}
	case DataSourceSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite data source")
		}
	case DataSourceRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("REDIS_HOST is required for the redis data source")
		}
	case DataSourceRemote:
		if c.Remote.Addr == "" {
			return fmt.Errorf("REMOTE_ADDR is required for the remote data source")
		}
	default:
		return fmt.Errorf("unknown DATASOURCE %q", c.DataSource.Kind)
	}
	return nil
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

// Addr returns the redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the sqlite data source name with the pragmas the store relies on
func (c *SQLiteConfig) DSN() string {
	path := c.Path
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(ON)"
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
}

// TTL returns the filter cache entry lifetime
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}
