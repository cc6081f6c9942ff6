// Package config loads the pipeline configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything the CLI and step environment need. All values
// come from TERRACE_* environment variables; unset values fall back to
// defaults that make a fully local, storeless run work.
type Config struct {
	// Workspace layout.
	CatalogDir  string `env:"TERRACE_CATALOG_DIR" envDefault:"data"`
	CacheDir    string `env:"TERRACE_CACHE_DIR" envDefault:".cache/snapshots"`
	SnapshotDir string `env:"TERRACE_SNAPSHOT_DIR" envDefault:"snapshots"`
	StepMetaDir string `env:"TERRACE_STEP_META_DIR" envDefault:"steps"`
	DagPath     string `env:"TERRACE_DAG_PATH" envDefault:"dag/main.yml"`

	// Execution.
	Workers int `env:"TERRACE_WORKERS" envDefault:"4"`

	// Object store (snapshot archive, export and publish target).
	// Empty endpoint disables remote storage.
	S3Endpoint     string `env:"TERRACE_S3_ENDPOINT"`
	S3AccessKey    string `env:"TERRACE_S3_ACCESS_KEY"`
	S3SecretKey    string `env:"TERRACE_S3_SECRET_KEY"`
	S3Region       string `env:"TERRACE_S3_REGION"`
	S3UseSSL       bool   `env:"TERRACE_S3_USE_SSL" envDefault:"false"`
	SnapshotBucket string `env:"TERRACE_SNAPSHOT_BUCKET" envDefault:"snapshots"`
	CatalogBucket  string `env:"TERRACE_CATALOG_BUCKET" envDefault:"catalog"`
	ExportBucket   string `env:"TERRACE_EXPORT_BUCKET" envDefault:"export"`
	LocalStoreDir  string `env:"TERRACE_LOCAL_STORE_DIR"`

	// Grapher database. Empty DSN disables the sync.
	GrapherDSN    string `env:"TERRACE_GRAPHER_DSN"`
	MigrationsDir string `env:"TERRACE_MIGRATIONS_DIR" envDefault:"migrations"`

	// Download politeness.
	DownloadRate  float64 `env:"TERRACE_DOWNLOAD_RATE" envDefault:"2"`
	DownloadBurst int     `env:"TERRACE_DOWNLOAD_BURST" envDefault:"2"`

	// Logging.
	LogLevel  string `env:"TERRACE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TERRACE_LOG_FORMAT" envDefault:"text"`
}

// Load reads .env (when present) and the environment, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: TERRACE_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.DownloadRate <= 0 {
		return fmt.Errorf("config: TERRACE_DOWNLOAD_RATE must be positive, got %g", c.DownloadRate)
	}
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		return fmt.Errorf("config: TERRACE_S3_ENDPOINT is set but credentials are missing")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: TERRACE_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// HasObjectStore reports whether any remote store is configured, real or
// local-directory backed.
func (c *Config) HasObjectStore() bool {
	return c.S3Endpoint != "" || c.LocalStoreDir != ""
}
