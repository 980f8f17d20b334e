package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-deposit/pkg/simpledeposit"
	archivememory "github.com/tendant/simple-deposit/pkg/simpledeposit/archive/memory"
	archives3 "github.com/tendant/simple-deposit/pkg/simpledeposit/archive/s3"
	"github.com/tendant/simple-deposit/pkg/simpledeposit/repo/memory"
	repopg "github.com/tendant/simple-deposit/pkg/simpledeposit/repo/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
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
		DBSchema:     "deposit",
		ArchiveType:  "memory",
		LogLevel:     "info",
		LogFormat:    "text",
		PollInterval: 30 * time.Second,
	}
}

// ServerConfig represents server configuration for the simple-deposit service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: deposit)

	// Archive backend configuration
	ArchiveType string // "memory", "s3"
	Archive     ArchiveConfig

	// Background reconcile loop
	PollInterval time.Duration

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json

	// JWTSecret enables identity extraction on the HTTP surface when set
	JWTSecret string
}

// ArchiveConfig holds settings for the S3-backed archive
type ArchiveConfig struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
	CreateBucket    bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if c.ArchiveType != "memory" && c.ArchiveType != "s3" {
		return errors.New("archive_type must be 'memory' or 's3'")
	}
	if c.ArchiveType == "s3" && c.Archive.Bucket == "" {
		return errors.New("archive bucket is required when using s3")
	}

	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}

	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService() (simpledeposit.Service, error) {
	repo, err := c.buildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	archive, err := c.buildArchive()
	if err != nil {
		return nil, fmt.Errorf("failed to build archive backend: %w", err)
	}

	return simpledeposit.New(
		simpledeposit.WithRepository(repo),
		simpledeposit.WithArchive(archive),
	)
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository() (simpledeposit.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildArchive creates an Archive backend based on the configuration
func (c *ServerConfig) buildArchive() (simpledeposit.Archive, error) {
	switch c.ArchiveType {
	case "memory":
		return archivememory.New(), nil
	case "s3":
		return archives3.New(archives3.Config{
			Region:                 c.Archive.Region,
			Bucket:                 c.Archive.Bucket,
			AccessKeyID:            c.Archive.AccessKeyID,
			SecretAccessKey:        c.Archive.SecretAccessKey,
			Endpoint:               c.Archive.Endpoint,
			UsePathStyle:           c.Archive.UsePathStyle,
			CreateBucketIfNotExist: c.Archive.CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported archive type: %s", c.ArchiveType)
	}
}

// PingPostgres verifies connectivity to Postgres and optionally sets search_path for the session.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
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
