package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig maps environment variables onto server configuration.
//
//	PORT                  server port (default "8080")
//	ENVIRONMENT           runtime environment (default "development")
//	DATABASE_URL          postgres connection string; empty means in-memory
//	DB_SCHEMA             postgres schema (default "deposit")
//	ARCHIVE_TYPE          "memory" or "s3"
//	ARCHIVE_BUCKET        s3 bucket (required for s3)
//	ARCHIVE_REGION        s3 region
//	ARCHIVE_ENDPOINT      custom endpoint for S3-compatible services
//	ARCHIVE_ACCESS_KEY    / ARCHIVE_SECRET_KEY  static credentials
//	ARCHIVE_PATH_STYLE    use path-style addressing (MinIO)
//	ARCHIVE_CREATE_BUCKET create the bucket on startup
//	POLL_INTERVAL         background reconcile interval (default 30s)
//	LOG_LEVEL / LOG_FORMAT
//	JWT_SECRET            HMAC secret for identity extraction
type envConfig struct {
	Port          string        `env:"PORT" env-default:""`
	Environment   string        `env:"ENVIRONMENT" env-default:""`
	DatabaseURL   string        `env:"DATABASE_URL" env-default:""`
	DBSchema      string        `env:"DB_SCHEMA" env-default:""`
	ArchiveType   string        `env:"ARCHIVE_TYPE" env-default:""`
	ArchiveBucket string        `env:"ARCHIVE_BUCKET" env-default:""`
	ArchiveRegion string        `env:"ARCHIVE_REGION" env-default:""`
	Endpoint      string        `env:"ARCHIVE_ENDPOINT" env-default:""`
	AccessKey     string        `env:"ARCHIVE_ACCESS_KEY" env-default:""`
	SecretKey     string        `env:"ARCHIVE_SECRET_KEY" env-default:""`
	PathStyle     bool          `env:"ARCHIVE_PATH_STYLE" env-default:"false"`
	CreateBucket  bool          `env:"ARCHIVE_CREATE_BUCKET" env-default:"false"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" env-default:"0s"`
	LogLevel      string        `env:"LOG_LEVEL" env-default:""`
	LogFormat     string        `env:"LOG_FORMAT" env-default:""`
	JWTSecret     string        `env:"JWT_SECRET" env-default:""`
}

// WithEnv overlays environment variables onto the configuration. Unset
// variables leave the existing values untouched.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var e envConfig
		if err := cleanenv.ReadEnv(&e); err != nil {
			return fmt.Errorf("reading environment: %w", err)
		}

		setString(&c.Port, e.Port)
		setString(&c.Environment, e.Environment)
		setString(&c.DBSchema, e.DBSchema)
		setString(&c.ArchiveType, e.ArchiveType)
		setString(&c.Archive.Bucket, e.ArchiveBucket)
		setString(&c.Archive.Region, e.ArchiveRegion)
		setString(&c.Archive.Endpoint, e.Endpoint)
		setString(&c.Archive.AccessKeyID, e.AccessKey)
		setString(&c.Archive.SecretAccessKey, e.SecretKey)
		setString(&c.LogLevel, e.LogLevel)
		setString(&c.LogFormat, e.LogFormat)
		setString(&c.JWTSecret, e.JWTSecret)

		if e.DatabaseURL != "" {
			c.DatabaseURL = e.DatabaseURL
			c.DatabaseType = "postgres"
		}
		if e.PathStyle {
			c.Archive.UsePathStyle = true
		}
		if e.CreateBucket {
			c.Archive.CreateBucket = true
		}
		if e.PollInterval > 0 {
			c.PollInterval = e.PollInterval
		}

		return nil
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
