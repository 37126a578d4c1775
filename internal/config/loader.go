package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "apfabric.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "APFABRIC_PORT")
	setString(&cfg.Server.CORSOrigin, "APFABRIC_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "APFABRIC_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "APFABRIC_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "APFABRIC_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "APFABRIC_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "APFABRIC_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Reasoner.URL, "APFABRIC_REASONER_URL")
	setString(&cfg.Reasoner.APIKey, "MISTRAL_API_KEY")
	setString(&cfg.Reasoner.Model, "APFABRIC_REASONER_MODEL")
	setDuration(&cfg.Reasoner.Timeout, "APFABRIC_REASONER_TIMEOUT")
	setString(&cfg.Logging.Level, "APFABRIC_LOG_LEVEL")
	setString(&cfg.Logging.Service, "APFABRIC_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "APFABRIC_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "APFABRIC_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "APFABRIC_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "APFABRIC_CACHE_TTL")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "APFABRIC_OTEL_INSECURE")
	setInt(&cfg.Pipeline.MaxConcurrent, "APFABRIC_PIPELINE_MAX_CONCURRENT")
	setInt(&cfg.Pipeline.HistoryLimit, "APFABRIC_PIPELINE_HISTORY_LIMIT")
	setFloat64(&cfg.GL.AutoPostThreshold, "APFABRIC_GL_AUTO_POST_THRESHOLD")
	setInt(&cfg.GL.MinTrainingExamples, "APFABRIC_GL_MIN_TRAINING_EXAMPLES")
	setFloat64(&cfg.Duplicate.DensityThreshold, "APFABRIC_DUP_DENSITY_THRESHOLD")
	setFloat64(&cfg.Duplicate.FuzzyThreshold, "APFABRIC_DUP_FUZZY_THRESHOLD")
	setFloat64(&cfg.Trust.WithholdPercent, "APFABRIC_TRUST_WITHHOLD_PERCENT")
	setFloat64(&cfg.Variance.PriorTolerance, "APFABRIC_VARIANCE_PRIOR_TOLERANCE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Pipeline.MaxConcurrent < 1 {
		return errors.New("pipeline.max_concurrent must be >= 1")
	}
	if cfg.GL.AutoPostThreshold <= 0 || cfg.GL.AutoPostThreshold > 1 {
		return errors.New("gl.auto_post_threshold must be in (0, 1]")
	}
	if cfg.Duplicate.MinHistory < 1 {
		return errors.New("duplicate.min_history must be >= 1")
	}
	if cfg.Trust.WithholdPercent < 0 || cfg.Trust.WithholdPercent >= 1 {
		return errors.New("trust.withhold_percent must be in [0, 1)")
	}
	if cfg.Variance.Percentile <= 0 || cfg.Variance.Percentile > 100 {
		return errors.New("variance.percentile must be in (0, 100]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
