// Package config loads wastelink settings from the environment.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"wastelink/internal/blob"
	"wastelink/internal/core"
)

// DefaultPrefix is prepended to every variable name, e.g. WASTELINK_STORAGE_DRIVER.
const DefaultPrefix = "WASTELINK"

// Config holds the process settings.
type Config struct {
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"file"`
	SnapshotPath  string `envconfig:"SNAPSHOT_PATH" default:"./data/wastelink.json"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"./data/wastelink.db"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`

	S3Bucket          string `envconfig:"S3_BUCKET"`
	S3Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint        string `envconfig:"S3_ENDPOINT"`
	S3PathStyle       bool   `envconfig:"S3_PATH_STYLE"`
	S3Key             string `envconfig:"S3_KEY" default:"wastelink.json"`
	S3AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`

	RequestIDPrefix string `envconfig:"REQUEST_ID_PREFIX" default:"WR"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads the environment under prefix (DefaultPrefix when empty) and validates the result.
func Load(prefix string) (Config, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	var c Config
	if err := envconfig.Process(prefix, &c); err != nil {
		return Config{}, fmt.Errorf("process environment config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch core.StorageDriver(c.StorageDriver) {
	case core.StorageMemory, core.StorageFile, core.StorageSQLite:
	case core.StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("set POSTGRES_DSN for the postgres storage driver")
		}
	case core.StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("set S3_BUCKET for the s3 storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Storage maps the settings onto the store selection used by core.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:       core.StorageDriver(c.StorageDriver),
		SnapshotPath: c.SnapshotPath,
		SQLitePath:   c.SQLitePath,
		PostgresDSN:  c.PostgresDSN,
		S3: blob.S3Config{
			Region:          c.S3Region,
			Bucket:          c.S3Bucket,
			Endpoint:        c.S3Endpoint,
			AccessKeyID:     c.S3AccessKeyID,
			SecretAccessKey: c.S3SecretAccessKey,
			PathStyle:       c.S3PathStyle,
		},
		S3Key: c.S3Key,
	}
}

// Logger builds a logrus logger writing to w with the configured level and format.
func (c Config) Logger(w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(level)
	if w != nil {
		logger.SetOutput(w)
	}
	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	return logger, nil
}
