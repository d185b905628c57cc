// Package models - Service configuration and operational settings.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, admission, etc.)
// - Defaults that run a single in-memory coordinator out of the box
// - Validation catches misconfigurations before any listener starts
package models

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
	StorageTypeRedis    = "redis"
)

// Unknown identity policies: what the facade does when the trusted identity
// header is missing.
const (
	UnknownIdentityShared     = "shared"      // all such callers share the "unknown" bucket
	UnknownIdentityRemoteAddr = "remote_addr" // fall back to the TCP peer address
	UnknownIdentityReject     = "reject"      // deny admission outright
)

// DefaultDomain is the limiter domain every facade operation addresses.
const DefaultDomain = "global"

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Admission     AdmissionConfig     `yaml:"admission" json:"admission"`
	Gateway       GatewayConfig       `yaml:"gateway" json:"gateway"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Path     string         `yaml:"path" json:"path"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

type SecurityConfig struct {
	APIKeys     []APIKey          `yaml:"api_keys" json:"api_keys"`
	FloodShield FloodShieldConfig `yaml:"flood_shield" json:"flood_shield"`
}

// FloodShieldConfig bounds how fast a single caller may hit the coordinator's
// own HTTP surface, independent of the admission policies.
type FloodShieldConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type AdmissionConfig struct {
	IdentityHeader  string        `yaml:"identity_header" json:"identity_header"`
	UnknownIdentity string        `yaml:"unknown_identity" json:"unknown_identity"`
	FailOpen        bool          `yaml:"fail_open" json:"fail_open"`
	CoordinatorURL  string        `yaml:"coordinator_url" json:"coordinator_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	Breaker         BreakerConfig `yaml:"breaker" json:"breaker"`
	// Domains the dispatch API may address. The default domain is always served.
	Domains []string `yaml:"domains" json:"domains"`
}

type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures" json:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout" json:"open_timeout"`
}

// GatewayConfig enables the reverse-proxy mode that puts the admission checks
// in front of the video-calling application.
type GatewayConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	UpstreamURL    string `yaml:"upstream_url" json:"upstream_url"`
	RoomCreatePath string `yaml:"room_create_path" json:"room_create_path"`
	RoomJoinPrefix string `yaml:"room_join_prefix" json:"room_join_prefix"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
}

// NewDefaultConfig creates a configuration with working defaults: in-memory
// storage, the shared unknown bucket, fail-closed admission and a cleanup sweep
// once a minute.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Path: "./data/limiter.json",
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "roomgate",
			},
		},
		Security: SecurityConfig{
			APIKeys: []APIKey{},
			FloodShield: FloodShieldConfig{
				Enabled:           true,
				RequestsPerMinute: 6000,
				BurstSize:         500,
				CleanupInterval:   5 * time.Minute,
			},
		},
		Admission: AdmissionConfig{
			IdentityHeader:  "CF-Connecting-IP",
			UnknownIdentity: UnknownIdentityShared,
			FailOpen:        false,
			RequestTimeout:  2 * time.Second,
			CleanupInterval: time.Minute,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
			Domains: []string{DefaultDomain},
		},
		Gateway: GatewayConfig{
			RoomCreatePath: "/api/rooms",
			RoomJoinPrefix: "/rooms/",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "roomgate",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Admission.Validate(); err != nil {
		return fmt.Errorf("invalid admission config: %w", err)
	}

	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("invalid gateway config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled && (sc.TLSCertFile == "" || sc.TLSKeyFile == "") {
		return errors.New("TLS cert and key files are required when TLS is enabled")
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	case StorageTypeRedis:
		if stc.Redis.Addr == "" {
			return errors.New("redis address is required for redis storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.FloodShield.Enabled {
		if sec.FloodShield.RequestsPerMinute <= 0 {
			return errors.New("flood shield requests per minute must be positive")
		}
		if sec.FloodShield.BurstSize <= 0 {
			return errors.New("flood shield burst size must be positive")
		}
		if sec.FloodShield.CleanupInterval <= 0 {
			return errors.New("flood shield cleanup interval must be positive")
		}
	}

	for _, apiKey := range sec.APIKeys {
		if apiKey.Key == "" {
			return errors.New("API key cannot be empty")
		}
		if apiKey.Name == "" {
			return errors.New("API key name cannot be empty")
		}
	}

	return nil
}

func (ac *AdmissionConfig) Validate() error {
	if ac.IdentityHeader == "" {
		return errors.New("identity header cannot be empty")
	}

	switch ac.UnknownIdentity {
	case UnknownIdentityShared, UnknownIdentityRemoteAddr, UnknownIdentityReject:
	default:
		return fmt.Errorf("invalid unknown identity policy: %s", ac.UnknownIdentity)
	}

	if ac.CoordinatorURL != "" {
		u, err := url.Parse(ac.CoordinatorURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid coordinator URL: %s", ac.CoordinatorURL)
		}
	}

	if ac.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}

	if ac.CleanupInterval < 0 {
		return errors.New("cleanup interval cannot be negative")
	}

	for _, name := range ac.Domains {
		if name == "" || strings.ContainsAny(name, "/:") {
			return fmt.Errorf("invalid domain name: %q", name)
		}
	}

	return nil
}

func (gc *GatewayConfig) Validate() error {
	if !gc.Enabled {
		return nil
	}

	u, err := url.Parse(gc.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream URL: %q", gc.UpstreamURL)
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	if oc.Tracing.Exporter != "stdout" && oc.Tracing.Exporter != "otlp" {
		return fmt.Errorf("invalid tracing exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("tracing sample rate must be between 0 and 1")
	}

	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("OTLP endpoint is required when tracing exporter is otlp")
	}

	return nil
}
