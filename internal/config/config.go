package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"roomgate/internal/models"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ROOMGATE_"

// Load builds the configuration from defaults, an optional YAML file and
// ROOMGATE_* environment variables, in that order. A .env file in the working
// directory is read first when present; it never overrides variables that are
// already set.
func Load(configPath string) (*models.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file. Unknown keys are
// rejected so typos don't silently fall back to defaults.
func loadFromFile(config *models.Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// envLoader applies overrides and remembers the first malformed value.
type envLoader struct {
	err error
}

func (l *envLoader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (l *envLoader) fail(name, value string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, value, err)
	}
}

func (l *envLoader) str(name string, dst *string) {
	if v, ok := l.lookup(name); ok {
		*dst = v
	}
}

func (l *envLoader) integer(name string, dst *int) {
	if v, ok := l.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (l *envLoader) uint32(name string, dst *uint32) {
	if v, ok := l.lookup(name); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = uint32(n)
	}
}

func (l *envLoader) boolean(name string, dst *bool) {
	if v, ok := l.lookup(name); ok {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (l *envLoader) duration(name string, dst *time.Duration) {
	if v, ok := l.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = d
	}
}

func (l *envLoader) float(name string, dst *float64) {
	if v, ok := l.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			l.fail(name, v, err)
			return
		}
		*dst = f
	}
}

// list splits a comma-separated value, dropping blanks.
func (l *envLoader) list(name string, dst *[]string) {
	if v, ok := l.lookup(name); ok {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*dst = items
	}
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) error {
	env := &envLoader{}

	// Server configuration
	env.integer("PORT", &config.Server.Port)
	env.str("HOST", &config.Server.Host)
	env.duration("READ_TIMEOUT", &config.Server.ReadTimeout)
	env.duration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	env.duration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	env.boolean("TLS_ENABLED", &config.Server.TLSEnabled)
	env.str("TLS_CERT_FILE", &config.Server.TLSCertFile)
	env.str("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Storage configuration
	env.str("STORAGE_TYPE", &config.Storage.Type)
	env.str("STORAGE_PATH", &config.Storage.Path)
	env.str("DATABASE_DSN", &config.Storage.Database.DSN)
	env.integer("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	env.duration("DATABASE_CONN_MAX_LIFETIME", &config.Storage.Database.ConnMaxLifetime)
	env.str("REDIS_ADDR", &config.Storage.Redis.Addr)
	env.str("REDIS_PASSWORD", &config.Storage.Redis.Password)
	env.integer("REDIS_DB", &config.Storage.Redis.DB)
	env.integer("REDIS_POOL_SIZE", &config.Storage.Redis.PoolSize)
	env.str("REDIS_KEY_PREFIX", &config.Storage.Redis.KeyPrefix)

	// Security configuration
	env.boolean("FLOOD_SHIELD_ENABLED", &config.Security.FloodShield.Enabled)
	env.integer("FLOOD_SHIELD_REQUESTS_PER_MINUTE", &config.Security.FloodShield.RequestsPerMinute)
	env.integer("FLOOD_SHIELD_BURST_SIZE", &config.Security.FloodShield.BurstSize)
	if key, ok := env.lookup("ADMIN_API_KEY"); ok {
		config.Security.APIKeys = append(config.Security.APIKeys, models.APIKey{
			Key:         key,
			Name:        "env-admin",
			Permissions: []string{models.PermissionAdmin},
			Enabled:     true,
		})
	}

	// Admission configuration
	env.str("IDENTITY_HEADER", &config.Admission.IdentityHeader)
	env.str("UNKNOWN_IDENTITY", &config.Admission.UnknownIdentity)
	env.boolean("FAIL_OPEN", &config.Admission.FailOpen)
	env.str("COORDINATOR_URL", &config.Admission.CoordinatorURL)
	env.duration("REQUEST_TIMEOUT", &config.Admission.RequestTimeout)
	env.duration("CLEANUP_INTERVAL", &config.Admission.CleanupInterval)
	env.uint32("BREAKER_MAX_FAILURES", &config.Admission.Breaker.MaxFailures)
	env.duration("BREAKER_OPEN_TIMEOUT", &config.Admission.Breaker.OpenTimeout)
	env.list("DOMAINS", &config.Admission.Domains)

	// Gateway configuration
	env.boolean("GATEWAY_ENABLED", &config.Gateway.Enabled)
	env.str("GATEWAY_UPSTREAM_URL", &config.Gateway.UpstreamURL)
	env.str("GATEWAY_ROOM_CREATE_PATH", &config.Gateway.RoomCreatePath)
	env.str("GATEWAY_ROOM_JOIN_PREFIX", &config.Gateway.RoomJoinPrefix)

	// Logging configuration
	env.str("LOG_LEVEL", &config.Logging.Level)
	env.str("LOG_FORMAT", &config.Logging.Format)
	env.str("LOG_OUTPUT", &config.Logging.Output)
	env.str("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	env.boolean("METRICS_ENABLED", &config.Metrics.Enabled)
	env.str("METRICS_PATH", &config.Metrics.Path)
	env.integer("METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	env.str("SERVICE_NAME", &config.Observability.ServiceName)
	env.boolean("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	env.str("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	env.float("TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)
	env.str("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)

	return env.err
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.Storage.Type = models.StorageTypeRedis
	config.Security.APIKeys = []models.APIKey{{
		Key:         "sha256:" + models.HashAPIKey("rg_replace-me"),
		Name:        "operations",
		Permissions: []string{models.PermissionAdmin},
		Enabled:     true,
	}}
	config.Gateway.Enabled = true
	config.Gateway.UpstreamURL = "http://localhost:3000"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
