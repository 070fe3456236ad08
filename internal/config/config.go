package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// CurrentSchemaVersion is the current config schema version.
const CurrentSchemaVersion = 1

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Environment variable names for config overrides.
// Priority: Environment > .env file > Config File > Default
const (
	EnvPort             = "WEBHOOK_PORT"
	EnvHost             = "WEBHOOK_HOST"
	EnvStore            = "WEBHOOK_STORE"
	EnvSQLitePath       = "WEBHOOK_SQLITE_PATH"
	EnvNATSURL          = "WEBHOOK_NATS_URL"
	EnvForwardURL       = "WEBHOOK_FORWARD_URL"
	EnvForwardBatchSec  = "WEBHOOK_FORWARD_BATCH_SEC"
	EnvExportPath       = "WEBHOOK_EXPORT_PATH"
	EnvExportS3Bucket   = "WEBHOOK_EXPORT_S3_BUCKET"
	EnvExportS3Key      = "WEBHOOK_EXPORT_S3_KEY"
	EnvExportS3Region   = "WEBHOOK_EXPORT_S3_REGION"
	EnvExportS3Endpoint = "WEBHOOK_EXPORT_S3_ENDPOINT"
	EnvExportInterval   = "WEBHOOK_EXPORT_INTERVAL"
	EnvRateLimit        = "WEBHOOK_RATE_LIMIT"
	EnvRateBurst        = "WEBHOOK_RATE_BURST"
	EnvOperatorUsername = "OPERATOR_USERNAME"
	EnvLiveKitURL       = "LIVEKIT_URL"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds non-sensitive application configuration.
type Config struct {
	SchemaVersion    int     `json:"schema_version"`
	Host             string  `json:"host"`
	Port             int     `json:"port"`
	Store            string  `json:"store"`
	SQLitePath       string  `json:"sqlite_path"`
	NATSURL          string  `json:"nats_url"`
	ForwardURL       string  `json:"forward_url"`
	ForwardBatchSec  int     `json:"forward_batch_sec"`
	ExportPath       string  `json:"export_path"`
	ExportS3Bucket   string  `json:"export_s3_bucket"`
	ExportS3Key      string  `json:"export_s3_key"`
	ExportS3Region   string  `json:"export_s3_region"`
	ExportS3Endpoint string  `json:"export_s3_endpoint"`
	ExportInterval   string  `json:"export_interval"` // Go duration, "" disables periodic export
	RateLimit        float64 `json:"rate_limit"`      // requests per second per client on /webhook
	RateBurst        int     `json:"rate_burst"`
	OperatorUsername string  `json:"operator_username"`
	LiveKitURL       string  `json:"livekit_url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SchemaVersion:   CurrentSchemaVersion,
		Host:            "0.0.0.0",
		Port:            8080,
		Store:           StoreMemory,
		SQLitePath:      "", // data dir
		ForwardBatchSec: 3,
		ExportS3Key:     "livekit-webhooks.jsonl",
		RateLimit:       20,
		RateBurst:       40,
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ExportEvery returns the periodic export interval, or 0 when disabled or invalid.
func (c Config) ExportEvery() time.Duration {
	if c.ExportInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.ExportInterval)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// LoadConfigFrom reads config from the specified path. A missing or corrupt
// file yields DefaultConfig with a warning logged (non-fatal).
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// File doesn't exist, use defaults (not an error)
			return cfg, nil
		}
		slog.Warn("failed to read config file, using defaults", "path", path, "error", err)
		return cfg, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil {
		slog.Warn("config file is corrupt, using defaults", "path", path, "error", err)
		return DefaultConfig(), nil
	}

	if cfg.SchemaVersion != CurrentSchemaVersion {
		slog.Warn("config schema version mismatch, using defaults",
			"got", cfg.SchemaVersion,
			"expected", CurrentSchemaVersion,
		)
		return DefaultConfig(), nil
	}

	return normalizeConfig(cfg), nil
}

// normalizeConfig replaces out-of-range values with defaults.
func normalizeConfig(cfg Config) Config {
	defaults := DefaultConfig()

	cfg.SchemaVersion = CurrentSchemaVersion

	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = defaults.Port
	}
	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if cfg.Store == "" {
		cfg.Store = defaults.Store
	}
	if cfg.ForwardBatchSec < 0 {
		cfg.ForwardBatchSec = defaults.ForwardBatchSec
	}
	if cfg.RateLimit < 0 {
		cfg.RateLimit = defaults.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaults.RateBurst
	}

	return cfg
}

// SaveConfigTo writes config to the specified path atomically.
func SaveConfigTo(cfg Config, path string) error {
	cfg.SchemaVersion = CurrentSchemaVersion
	return writeJSONAtomic(path, cfg)
}

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment variables take highest priority over config file values.
// Unparseable numbers are ignored.
func ApplyEnvOverrides(cfg Config) Config {
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port <= 65535 {
			cfg.Port = port
		}
	}
	if v := os.Getenv(EnvHost); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		cfg.Store = strings.ToLower(strings.TrimSpace(v))
	}

	strOverrides := []struct {
		env string
		dst *string
	}{
		{EnvSQLitePath, &cfg.SQLitePath},
		{EnvNATSURL, &cfg.NATSURL},
		{EnvForwardURL, &cfg.ForwardURL},
		{EnvExportPath, &cfg.ExportPath},
		{EnvExportS3Bucket, &cfg.ExportS3Bucket},
		{EnvExportS3Key, &cfg.ExportS3Key},
		{EnvExportS3Region, &cfg.ExportS3Region},
		{EnvExportS3Endpoint, &cfg.ExportS3Endpoint},
		{EnvExportInterval, &cfg.ExportInterval},
		{EnvOperatorUsername, &cfg.OperatorUsername},
		{EnvLiveKitURL, &cfg.LiveKitURL},
	}
	for _, o := range strOverrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	if v := os.Getenv(EnvForwardBatchSec); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec >= 0 {
			cfg.ForwardBatchSec = sec
		}
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil && rps >= 0 {
			cfg.RateLimit = rps
		}
	}
	if v := os.Getenv(EnvRateBurst); v != "" {
		if burst, err := strconv.Atoi(v); err == nil && burst > 0 {
			cfg.RateBurst = burst
		}
	}

	return cfg
}

// Validate checks that cfg and sec can run the server. A missing webhook
// secret is an error: the receiver never accepts unsigned deliveries.
func Validate(cfg Config, sec Secrets) error {
	var problems []string

	if sec.WebhookSecret.IsEmpty() {
		problems = append(problems, EnvWebhookSecret+" is required")
	}
	switch cfg.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if sec.DatabaseURL.IsEmpty() {
			problems = append(problems, EnvDatabaseURL+" is required for the postgres store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store %q (want memory, sqlite or postgres)", cfg.Store))
	}
	if cfg.ExportInterval != "" && cfg.ExportEvery() == 0 {
		problems = append(problems, fmt.Sprintf("export interval %q is not a positive duration", cfg.ExportInterval))
	}
	if cfg.ExportEvery() > 0 && cfg.ExportPath == "" && cfg.ExportS3Bucket == "" {
		problems = append(problems, "export interval set but no export path or S3 bucket")
	}
	if cfg.OperatorUsername != "" && sec.OperatorPassword.IsEmpty() {
		problems = append(problems, EnvOperatorPassword+" is required when "+EnvOperatorUsername+" is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
