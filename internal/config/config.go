// Package config provides Viper-based configuration loading for the blackjack server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// StorageConfig selects and tunes the persistence backend.
type StorageConfig struct {
	// Backend is "memory", "sqlite", or "postgres".
	Backend string `mapstructure:"backend"`
	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `mapstructure:"sqlite_path"`
	// SessionTTL bounds how long an abandoned game survives in the store.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// LockConfig bounds the per-room lock.
type LockConfig struct {
	// AcquireTimeout is how long an operation waits for the room lock.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	// Hold is the ceiling after which a held lock frees itself.
	Hold time.Duration `mapstructure:"hold"`
	// Retry is the pause between acquisition attempts.
	Retry time.Duration `mapstructure:"retry"`
}

// GameConfig holds table timing and money settings.
type GameConfig struct {
	BidTimeout   time.Duration `mapstructure:"bid_timeout"`
	TurnTimeout  time.Duration `mapstructure:"turn_timeout"`
	LobbyMin     time.Duration `mapstructure:"lobby_min"`
	LobbyMax     time.Duration `mapstructure:"lobby_max"`
	LobbyDefault time.Duration `mapstructure:"lobby_default"`
	LobbyTick    time.Duration `mapstructure:"lobby_tick"`
	StartBalance int64         `mapstructure:"start_balance"`
	// DealerRetry is the pause before re-raising a dealer event whose publish failed.
	DealerRetry time.Duration `mapstructure:"dealer_retry"`
	// BonusAmount is credited by the bonus command to balances below BonusBelow,
	// at most once per BonusCooldown.
	BonusAmount   int64         `mapstructure:"bonus_amount"`
	BonusBelow    int64         `mapstructure:"bonus_below"`
	BonusCooldown time.Duration `mapstructure:"bonus_cooldown"`
	// RulesFile is an optional YAML file with house rules; empty uses the defaults.
	RulesFile string `mapstructure:"rules_file"`
}

// WorkersConfig sizes the task pool.
type WorkersConfig struct {
	Size          int `mapstructure:"size"`
	QueueCapacity int `mapstructure:"queue_capacity"`
}

// EventsConfig tunes the event log consumers.
type EventsConfig struct {
	// PollInterval is how often durable backends are polled for new events.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// LeaseTTL is how long a delivered event stays invisible before redelivery.
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
	// Consumer names this process in event leases.
	Consumer string `mapstructure:"consumer"`
	// MaxAttempts is how many deliveries an event gets before it is dropped.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector host:port; empty disables export.
	Endpoint string `mapstructure:"endpoint"`
	// Insecure disables TLS to the collector.
	Insecure bool `mapstructure:"insecure"`
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `mapstructure:"service_name"`
	// SampleRatio is the fraction of root spans sampled, 0..1.
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Lock     LockConfig     `mapstructure:"lock"`
	Game     GameConfig     `mapstructure:"game"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Storage.Backend == BackendPostgres {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLock(c.Lock); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWorkers(c.Workers); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateEvents(c.Events); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTracing(c.Tracing); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 || d.MinConns > d.MaxConns {
		errs = append(errs, fmt.Sprintf("database.min_conns must be 0-max_conns, got %d", d.MinConns))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	var errs []string
	switch s.Backend {
	case BackendMemory, BackendPostgres:
	case BackendSQLite:
		if s.SQLitePath == "" {
			errs = append(errs, "storage.sqlite_path must not be empty for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend must be one of [memory, sqlite, postgres], got %q", s.Backend))
	}
	if s.SessionTTL < 0 {
		errs = append(errs, "storage.session_ttl must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLock(l LockConfig) error {
	var errs []string
	if l.AcquireTimeout <= 0 {
		errs = append(errs, "lock.acquire_timeout must be > 0")
	}
	if l.Hold <= 0 {
		errs = append(errs, "lock.hold must be > 0")
	}
	if l.Retry <= 0 {
		errs = append(errs, "lock.retry must be > 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.BidTimeout <= 0 {
		errs = append(errs, "game.bid_timeout must be > 0")
	}
	if g.TurnTimeout <= 0 {
		errs = append(errs, "game.turn_timeout must be > 0")
	}
	if g.LobbyMin <= 0 || g.LobbyMax < g.LobbyMin {
		errs = append(errs, fmt.Sprintf("game.lobby_min/lobby_max must satisfy 0 < min <= max, got %s/%s", g.LobbyMin, g.LobbyMax))
	} else if g.LobbyDefault < g.LobbyMin || g.LobbyDefault > g.LobbyMax {
		errs = append(errs, fmt.Sprintf("game.lobby_default must be within [%s, %s], got %s", g.LobbyMin, g.LobbyMax, g.LobbyDefault))
	}
	if g.LobbyTick <= 0 {
		errs = append(errs, "game.lobby_tick must be > 0")
	}
	if g.StartBalance < 0 {
		errs = append(errs, fmt.Sprintf("game.start_balance must be >= 0, got %d", g.StartBalance))
	}
	if g.DealerRetry <= 0 {
		errs = append(errs, "game.dealer_retry must be > 0")
	}
	if g.BonusAmount <= 0 || g.BonusBelow <= 0 {
		errs = append(errs, fmt.Sprintf("game.bonus_amount and game.bonus_below must be > 0, got %d/%d", g.BonusAmount, g.BonusBelow))
	}
	if g.BonusCooldown < 0 {
		errs = append(errs, fmt.Sprintf("game.bonus_cooldown must be >= 0, got %s", g.BonusCooldown))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateWorkers(w WorkersConfig) error {
	var errs []string
	if w.Size < 1 {
		errs = append(errs, fmt.Sprintf("workers.size must be >= 1, got %d", w.Size))
	}
	if w.QueueCapacity < 1 {
		errs = append(errs, fmt.Sprintf("workers.queue_capacity must be >= 1, got %d", w.QueueCapacity))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateEvents(e EventsConfig) error {
	var errs []string
	if e.PollInterval <= 0 {
		errs = append(errs, "events.poll_interval must be > 0")
	}
	if e.LeaseTTL <= 0 {
		errs = append(errs, "events.lease_ttl must be > 0")
	}
	if e.Consumer == "" {
		errs = append(errs, "events.consumer must not be empty")
	}
	if e.MaxAttempts < 1 {
		errs = append(errs, "events.max_attempts must be >= 1")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateTracing(t TracingConfig) error {
	if t.ServiceName == "" {
		return errors.New("tracing.service_name must not be empty")
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", t.SampleRatio)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. A .env file in the working directory,
// if present, is loaded into the environment first.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with BLACKJACK_ prefix
	v.SetEnvPrefix("BLACKJACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "blackjack")
	v.SetDefault("database.password", "blackjack")
	v.SetDefault("database.name", "blackjack")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.sqlite_path", "blackjack.db")
	v.SetDefault("storage.session_ttl", "24h")

	v.SetDefault("lock.acquire_timeout", "5s")
	v.SetDefault("lock.hold", "3s")
	v.SetDefault("lock.retry", "25ms")

	v.SetDefault("game.bid_timeout", "30s")
	v.SetDefault("game.turn_timeout", "30s")
	v.SetDefault("game.lobby_min", "15s")
	v.SetDefault("game.lobby_max", "10m")
	v.SetDefault("game.lobby_default", "30s")
	v.SetDefault("game.lobby_tick", "5s")
	v.SetDefault("game.start_balance", 1000)
	v.SetDefault("game.dealer_retry", "5s")
	v.SetDefault("game.bonus_amount", 125)
	v.SetDefault("game.bonus_below", 5)
	v.SetDefault("game.bonus_cooldown", "24h")
	v.SetDefault("game.rules_file", "")

	v.SetDefault("workers.size", 5)
	v.SetDefault("workers.queue_capacity", 256)

	v.SetDefault("events.poll_interval", "250ms")
	v.SetDefault("events.lease_ttl", "30s")
	v.SetDefault("events.consumer", "blackjackd")
	v.SetDefault("events.max_attempts", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "blackjack")
	v.SetDefault("tracing.sample_ratio", 1.0)
}
