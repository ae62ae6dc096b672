package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidConfig         = errors.New("invalid config")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.3.0"

// CurrentVersion is the current version of the config file.
const CurrentVersion = 1

// Storage backends.
const (
	UserBackendSQLite   = "sqlite"
	UserBackendPostgres = "postgres"
	NameBackendFile     = "file"
	NameBackendRedis    = "redis"
)

// Environment variables that override secrets from the config file.
const (
	EnvClientSecret     = "FLEET_ESI_CLIENT_SECRET"
	EnvRedisPassword    = "FLEET_REDIS_PASSWORD"
	EnvPostgresPassword = "FLEET_POSTGRES_PASSWORD"
)

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version        int            `koanf:"version"`
	Server         Server         `koanf:"server"`
	ESI            ESI            `koanf:"esi"`
	Poll           Poll           `koanf:"poll"`
	Storage        Storage        `koanf:"storage"`
	PostgreSQL     PostgreSQL     `koanf:"postgresql"`
	Redis          Redis          `koanf:"redis"`
	CircuitBreaker CircuitBreaker `koanf:"circuit_breaker"`
	Retry          Retry          `koanf:"retry"`
	Debug          Debug          `koanf:"debug"`
	Telemetry      Telemetry      `koanf:"telemetry"`
}

// Server contains the HTTP and realtime server configuration.
type Server struct {
	// Listen host.
	Host string `koanf:"host"`
	// Listen port.
	Port int `koanf:"port"`
	// Public URL of the dashboard, used for the OAuth redirect and post-login redirect.
	Domain string `koanf:"domain"`
	// Directory holding the dashboard assets.
	StaticDir string `koanf:"static_dir"`
}

// ESI contains the upstream API and SSO configuration.
type ESI struct {
	// OAuth client id.
	ClientID string `koanf:"client_id"`
	// OAuth client secret.
	ClientSecret string `koanf:"client_secret"`
	// Base URL of the ESI API.
	BaseURL string `koanf:"base_url"`
	// Base URL of the SSO login server.
	LoginURL string `koanf:"login_url"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// User agent sent with every request.
	UserAgent string `koanf:"user_agent"`
}

// Poll contains fleet polling configuration.
type Poll struct {
	// Interval between fleet checks in milliseconds.
	Interval int `koanf:"interval"`
	// Consecutive failed checks before a session stops itself.
	FailureThreshold int `koanf:"failure_threshold"`
	// Maximum concurrent name lookups while building a snapshot.
	NameConcurrency int `koanf:"name_concurrency"`
}

// Storage selects and configures the durable stores.
type Storage struct {
	// User store backend (sqlite, postgres).
	UserBackend string `koanf:"user_backend"`
	// Path of the SQLite database file.
	SQLitePath string `koanf:"sqlite_path"`
	// Name cache backend (file, redis).
	NameBackend string `koanf:"name_backend"`
	// Path of the ship type name file.
	NamesFile string `koanf:"names_file"`
	// Path of the ship filters file.
	FiltersFile string `koanf:"filters_file"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// CircuitBreaker contains circuit breaker configuration.
type CircuitBreaker struct {
	// Maximum number of requests allowed to pass through when the circuit is half-open.
	MaxRequests uint32 `koanf:"max_requests"`
	// The cyclic period of the closed state for the circuit breaker to clear the internal counts.
	Interval int `koanf:"interval"`
	// The period of the open state after which the state of the circuit breaker becomes half-open.
	Timeout int `koanf:"timeout"`
}

// Retry contains retry configuration.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log files to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN; tracing export is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Service name reported with spans.
	ServiceName string `koanf:"service_name"`
}

// PollInterval returns the configured interval between fleet checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.Interval) * time.Millisecond
}

// RequestTimeout returns the configured upstream request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.ESI.RequestTimeout) * time.Millisecond
}

// Default returns a configuration with every optional field set.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: Server{
			Host:      "0.0.0.0",
			Port:      3000,
			Domain:    "http://localhost:3000",
			StaticDir: "static",
		},
		ESI: ESI{
			BaseURL:        "https://esi.evetech.net",
			LoginURL:       "https://login.eveonline.com",
			RequestTimeout: 10000,
			UserAgent:      "fleet-overview",
		},
		Poll: Poll{
			Interval:         6000,
			FailureThreshold: 2,
			NameConcurrency:  8,
		},
		Storage: Storage{
			UserBackend: UserBackendSQLite,
			SQLitePath:  "data/users.db",
			NameBackend: NameBackendFile,
			NamesFile:   "data/ship_types.json",
			FiltersFile: "data/filters.json",
		},
		CircuitBreaker: CircuitBreaker{
			MaxRequests: 5,
			Interval:    60000,
			Timeout:     30000,
		},
		Retry: Retry{
			MaxRetries: 2,
			Delay:      200,
			MaxDelay:   1000,
		},
		Debug: Debug{
			LogLevel:      "info",
			MaxLogsToKeep: 10,
			MaxLogLines:   10000,
		},
		Telemetry: Telemetry{
			ServiceName: "fleet-overview",
		},
	}
}

// LoadConfig loads the configuration from the first config.toml found in the search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".fleet-overview",
		homeDir + "/.fleet-overview/config",
		"/etc/fleet-overview/config",
		"config",
		".",
	}

	for _, path := range configPaths {
		cfg, err := LoadFile(path + "/config.toml")
		if errors.Is(err, ErrConfigFileNotFound) {
			continue
		}

		if err != nil {
			return nil, "", err
		}

		return cfg, path, nil
	}

	return nil, "", fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
}

// LoadFile loads a single config file on top of the defaults and applies
// secret overrides from the environment (and an optional .env file).
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("error loading config %s: %w", path, err)
	}

	config := Default()
	if err := k.Unmarshal("", config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Defaults carry the current version, so only the file itself can satisfy this
	if err := checkConfigVersion(k.Int("version")); err != nil {
		return nil, err
	}

	// A missing .env file is fine, the real environment still applies
	_ = godotenv.Load()

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the fields the application cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.ESI.ClientID == "":
		return fmt.Errorf("%w: esi.client_id is required", ErrInvalidConfig)
	case c.Poll.Interval <= 0:
		return fmt.Errorf("%w: poll.interval must be positive", ErrInvalidConfig)
	case c.Poll.FailureThreshold <= 0:
		return fmt.Errorf("%w: poll.failure_threshold must be positive", ErrInvalidConfig)
	}

	switch c.Storage.UserBackend {
	case UserBackendSQLite, UserBackendPostgres:
	default:
		return fmt.Errorf("%w: unknown storage.user_backend %q", ErrInvalidConfig, c.Storage.UserBackend)
	}

	switch c.Storage.NameBackend {
	case NameBackendFile, NameBackendRedis:
	default:
		return fmt.Errorf("%w: unknown storage.name_backend %q", ErrInvalidConfig, c.Storage.NameBackend)
	}

	return nil
}

// applyEnvOverrides replaces secrets with values from the environment when set.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv(EnvClientSecret); v != "" {
		config.ESI.ClientSecret = v
	}

	if v := os.Getenv(EnvRedisPassword); v != "" {
		config.Redis.Password = v
	}

	if v := os.Getenv(EnvPostgresPassword); v != "" {
		config.PostgreSQL.Password = v
	}
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current int) error {
	if current == 0 {
		return fmt.Errorf("%w: config.toml", ErrConfigVersionMissing)
	}

	if current != CurrentVersion {
		return fmt.Errorf(
			"%w: config.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/d3vfreak/fleet-overview/tree/%s/config/config.toml",
			ErrConfigVersionMismatch,
			current,
			CurrentVersion,
			RepositoryVersion,
		)
	}

	return nil
}
