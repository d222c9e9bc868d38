// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"retail-medallion/internal/domain"
)

// DefaultStageTimeout bounds a single stage when nothing else is configured.
const DefaultStageTimeout = 60 * time.Second

// Config holds process-level settings: logging, the run ledger, the pipeline
// definition file, and the injected storage credentials.
type Config struct {
	LogLevel     string        // log level: debug, info, warn, error (default "info")
	Env          string        // environment: "development" (default) or "production"
	PipelinePath string        // path to the pipeline YAML (optional)
	StateDBPath  string        // path to the SQLite run ledger (default "medallion_runs.sqlite")
	StageTimeout time.Duration // per-stage timeout (default 60s)

	// Credentials are passed to storage backends; nothing else reads them.
	Credentials domain.StorageCredentials

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
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

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
// Storage credentials are optional; a remote layer without them fails when
// the stage opens it, not here.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Env:          os.Getenv("ENV"),
		PipelinePath: os.Getenv("MEDALLION_CONFIG"),
		StateDBPath:  os.Getenv("MEDALLION_STATE_DB"),
		Credentials: domain.StorageCredentials{
			S3KeyID:          os.Getenv("S3_KEY_ID"),
			S3Secret:         os.Getenv("S3_SECRET"),
			S3Endpoint:       os.Getenv("S3_ENDPOINT"),
			S3Region:         os.Getenv("S3_REGION"),
			S3URLStyle:       os.Getenv("S3_URL_STYLE"),
			AzureAccountName: os.Getenv("AZURE_STORAGE_ACCOUNT"),
			AzureAccountKey:  os.Getenv("AZURE_STORAGE_KEY"),
			GCSKeyFilePath:   os.Getenv("GCS_KEY_FILE"),
		},
	}

	if v := os.Getenv("MEDALLION_STAGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MEDALLION_STAGE_TIMEOUT %q: %w", v, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("MEDALLION_STAGE_TIMEOUT must be positive, got %s", d)
		}
		cfg.StageTimeout = d
	}

	// Defaults
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StateDBPath == "" {
		cfg.StateDBPath = "medallion_runs.sqlite"
	}
	if cfg.StageTimeout == 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}
	if cfg.Credentials.S3Region == "" && cfg.Credentials.HasS3() {
		cfg.Credentials.S3Region = "us-east-1"
		cfg.Warnings = append(cfg.Warnings, "S3_REGION not set, defaulting to us-east-1")
	}
	if (cfg.Credentials.S3KeyID == "") != (cfg.Credentials.S3Secret == "") {
		return nil, fmt.Errorf("both S3_KEY_ID and S3_SECRET must be set together")
	}
	if (cfg.Credentials.AzureAccountName == "") != (cfg.Credentials.AzureAccountKey == "") {
		return nil, fmt.Errorf("both AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY must be set together")
	}

	// Production mode: a pipeline file is mandatory, built-in defaults are for local runs.
	if cfg.IsProduction() && cfg.PipelinePath == "" {
		return nil, fmt.Errorf("MEDALLION_CONFIG must be set in production (ENV=production)")
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
