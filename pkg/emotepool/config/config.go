package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
	memorybackend "github.com/bmintz/emoji-vacuum/pkg/emotepool/backend/memory"
	s3backend "github.com/bmintz/emoji-vacuum/pkg/emotepool/backend/s3"
	repomem "github.com/bmintz/emoji-vacuum/pkg/emotepool/repo/memory"
	repopg "github.com/bmintz/emoji-vacuum/pkg/emotepool/repo/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		BackendType:  "memory",
		SlotCapacity: emotepool.SlotCapacity,
		SlotPrefixes: emotepool.DefaultSlotPrefixes(),
		Decay: DecayConfig{
			Enabled:        true,
			Window:         emotepool.DefaultUsageWindow,
			UsageThreshold: 2,
			PollInterval:   10 * time.Minute,
		},
	}
}

// ServerConfig represents server configuration for the emote pool service.
// Env tags are consumed by WithEnv.
type ServerConfig struct {
	Port        string `env:"PORT"`
	Environment string `env:"ENVIRONMENT"` // development, production, testing

	// Database configuration
	DatabaseURL  string `env:"DATABASE_URL"`
	DatabaseType string // "memory", "postgres"; derived from DatabaseURL
	RunMigrations bool  `env:"RUN_MIGRATIONS"`

	// Emote backend configuration
	BackendType string `env:"BACKEND_TYPE"` // "memory", "s3"
	S3          S3Config

	// Pool configuration
	AdminIDs     []int64  `env:"ADMIN_IDS"`
	SlotPrefixes []string `env:"SLOT_PREFIXES"`
	SlotCapacity int      `env:"SLOT_CAPACITY"`

	Decay DecayConfig
}

// S3Config configures the S3 emote backend.
type S3Config struct {
	Region          string `env:"S3_REGION"`
	Bucket          string `env:"S3_BUCKET"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	Endpoint        string `env:"S3_ENDPOINT"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE"`
}

// DecayConfig configures the background decay engine.
type DecayConfig struct {
	Enabled        bool          `env:"DECAY_ENABLED" env-default:"true"`
	Window         time.Duration `env:"DECAY_WINDOW"`
	UsageThreshold int           `env:"DECAY_USAGE_THRESHOLD"`
	PollInterval   time.Duration `env:"DECAY_POLL_INTERVAL"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database URL is required when using postgres")
	}

	switch c.BackendType {
	case "memory":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("S3 bucket is required when using the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported backend type: %s", c.BackendType)
	}

	if c.SlotCapacity <= 0 {
		return errors.New("slot capacity must be positive")
	}

	return nil
}

// BuildService creates a Service instance from the server configuration.
// The returned cleanup function releases database resources.
func (c *ServerConfig) BuildService(logger *slog.Logger) (emotepool.Service, func(), error) {
	repo, cleanup, err := c.BuildRepository()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	backend, err := c.BuildBackend()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to build backend: %w", err)
	}

	svc, err := emotepool.New(
		emotepool.WithRepository(repo),
		emotepool.WithBackend(backend),
		emotepool.WithAdmins(c.AdminIDs...),
		emotepool.WithSlotCapacity(c.SlotCapacity),
		emotepool.WithSlotPrefixes(c.SlotPrefixes...),
		emotepool.WithUsageWindow(c.Decay.Window),
		emotepool.WithLogger(logger),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// BuildRepository creates a Repository based on the configuration.
func (c *ServerConfig) BuildRepository() (emotepool.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return repomem.New(), func() {}, nil
	case "postgres":
		if c.RunMigrations {
			if err := repopg.Migrate(c.DatabaseURL); err != nil {
				return nil, nil, fmt.Errorf("migrations failed: %w", err)
			}
		}
		pool, err := pgxpool.New(context.Background(), c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildBackend creates the emote Backend based on the configuration.
func (c *ServerConfig) BuildBackend() (emotepool.Backend, error) {
	switch c.BackendType {
	case "memory":
		return memorybackend.New(), nil
	case "s3":
		return s3backend.New(s3backend.Config{
			Region:          c.S3.Region,
			Bucket:          c.S3.Bucket,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			Endpoint:        c.S3.Endpoint,
			UsePathStyle:    c.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", c.BackendType)
	}
}

// PingPostgres verifies connectivity to Postgres.
func PingPostgres(databaseURL string) error {
	if databaseURL == "" {
		return errors.New("database URL is required")
	}
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
