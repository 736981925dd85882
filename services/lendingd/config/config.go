package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"lendcore/gateway/middleware"
	"lendcore/observability/logging"
	telemetry "lendcore/observability/otel"
	"lendcore/storage/journal"
)

const (
	StorageMemory  = "memory"
	StorageLevelDB = "leveldb"
	StorageBolt    = "bolt"

	defaultListen = ":50053"
)

// Environment variables that override the file.
const (
	envListen       = "LENDINGD_LISTEN"
	envEnvironment  = "LENDINGD_ENV"
	envStorage      = "LENDINGD_STORAGE"
	envDataDir      = "LENDINGD_DATA_DIR"
	envMarkets      = "LENDINGD_MARKETS"
	envJWTSecret    = "LENDINGD_JWT_SECRET"
	envLogLevel     = "LENDINGD_LOG_LEVEL"
	envOTLPEndpoint = "LENDINGD_OTLP_ENDPOINT"
	envOTLPHeaders  = "LENDINGD_OTLP_HEADERS"
	envOTLPInsecure = "LENDINGD_OTLP_INSECURE"
	envJournalDSN   = "LENDINGD_JOURNAL_DSN"
)

// Config captures the runtime settings for the lending daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"environment"`
	MarketsPath   string          `yaml:"markets"`
	TLS           TLSConfig       `yaml:"tls"`
	Storage       StorageConfig   `yaml:"storage"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	CORS          CORSConfig      `yaml:"cors"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Log           LogConfig       `yaml:"log"`
	Journal       JournalConfig   `yaml:"journal"`
	Stream        StreamConfig    `yaml:"stream"`
}

// TLSConfig describes the certificate served on the listener.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// StorageConfig selects where pool snapshots are kept.
type StorageConfig struct {
	Backend    string `yaml:"backend"`
	DataDir    string `yaml:"data_dir"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// AuthConfig configures bearer authentication on the RPC surface.
type AuthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	JWTSecret    string        `yaml:"jwt_secret"`
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	StaticTokens []StaticToken `yaml:"static_tokens"`
}

// StaticToken is an opaque bearer token bound to an address.
type StaticToken struct {
	Token   string   `yaml:"token"`
	Subject string   `yaml:"subject"`
	Scopes  []string `yaml:"scopes"`
}

// RateLimitConfig bounds requests per client. Zero disables the limiter.
type RateLimitConfig struct {
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`
	Metrics  bool              `yaml:"metrics"`
	Traces   bool              `yaml:"traces"`
}

// JournalConfig selects the SQL database receiving the event history. An
// empty driver disables the journal.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// StreamConfig controls the websocket event stream.
type StreamConfig struct {
	Enabled bool `yaml:"enabled"`
	Buffer  int  `yaml:"buffer"`
}

// LogConfig sets the log level and the optional rotating file sink.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML configuration from disk, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
		Storage:       StorageConfig{Backend: StorageMemory},
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	cfg.ListenAddress = stringFromEnv(envListen, cfg.ListenAddress)
	cfg.Environment = stringFromEnv(envEnvironment, cfg.Environment)
	cfg.Storage.Backend = stringFromEnv(envStorage, cfg.Storage.Backend)
	cfg.Storage.DataDir = stringFromEnv(envDataDir, cfg.Storage.DataDir)
	cfg.MarketsPath = stringFromEnv(envMarkets, cfg.MarketsPath)
	cfg.Auth.JWTSecret = stringFromEnv(envJWTSecret, cfg.Auth.JWTSecret)
	cfg.Log.Level = stringFromEnv(envLogLevel, cfg.Log.Level)
	cfg.Telemetry.Endpoint = stringFromEnv(envOTLPEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.Insecure = boolFromEnv(envOTLPInsecure, cfg.Telemetry.Insecure)
	cfg.Journal.DSN = stringFromEnv(envJournalDSN, cfg.Journal.DSN)
	if headers := telemetry.ParseHeaders(os.Getenv(envOTLPHeaders)); len(headers) > 0 {
		if cfg.Telemetry.Headers == nil {
			cfg.Telemetry.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			cfg.Telemetry.Headers[k] = v
		}
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.MarketsPath = strings.TrimSpace(cfg.MarketsPath)
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageMemory
	}
	cfg.Storage.DataDir = strings.TrimSpace(cfg.Storage.DataDir)
	cfg.Auth.normalize()
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	cfg.Log.Level = strings.TrimSpace(cfg.Log.Level)
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)
}

func (cfg *AuthConfig) normalize() {
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	tokens := make([]StaticToken, 0, len(cfg.StaticTokens))
	for _, token := range cfg.StaticTokens {
		token.Token = strings.TrimSpace(token.Token)
		token.Subject = strings.TrimSpace(token.Subject)
		token.Scopes = trimAll(token.Scopes)
		if token.Token == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	cfg.StaticTokens = tokens
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.MarketsPath == "" {
		return fmt.Errorf("markets: path required")
	}
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	switch cfg.Storage.Backend {
	case StorageMemory:
	case StorageLevelDB, StorageBolt:
		if cfg.Storage.DataDir == "" {
			return fmt.Errorf("storage: data_dir required for the %s backend", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.RateLimit.PerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must be non-negative")
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation values must be non-negative")
	}
	switch cfg.Journal.Driver {
	case "":
	case journal.DriverSQLite, journal.DriverPostgres:
		if cfg.Journal.DSN == "" {
			return fmt.Errorf("journal: dsn required for the %s driver", cfg.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal: unknown driver %q", cfg.Journal.Driver)
	}
	if cfg.Stream.Buffer < 0 {
		return fmt.Errorf("stream: buffer must be non-negative")
	}
	return nil
}

// Enabled reports whether events are journaled.
func (cfg JournalConfig) Enabled() bool { return cfg.Driver != "" }

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	return nil
}

// Enabled reports whether the listener serves TLS.
func (cfg TLSConfig) Enabled() bool { return cfg.CertPath != "" }

func (cfg AuthConfig) validate() error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.JWTSecret == "" && len(cfg.StaticTokens) == 0 {
		return fmt.Errorf("a jwt secret or at least one static token is required")
	}
	for i, token := range cfg.StaticTokens {
		if !common.IsHexAddress(token.Subject) {
			return fmt.Errorf("static_tokens[%d]: subject %q is not an address", i, token.Subject)
		}
		for _, scope := range token.Scopes {
			if scope != middleware.ScopeWrite && scope != middleware.ScopeAdmin {
				return fmt.Errorf("static_tokens[%d]: unknown scope %q", i, scope)
			}
		}
	}
	return nil
}

// Middleware converts the section to the authenticator configuration.
// The health probe and the metrics endpoint stay reachable without a
// token.
func (cfg AuthConfig) Middleware() middleware.AuthConfig {
	tokens := make([]middleware.StaticToken, 0, len(cfg.StaticTokens))
	for _, token := range cfg.StaticTokens {
		tokens = append(tokens, middleware.StaticToken{Token: token.Token, Subject: token.Subject, Scopes: token.Scopes})
	}
	return middleware.AuthConfig{
		Enabled:       cfg.Enabled,
		HMACSecret:    cfg.JWTSecret,
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		OptionalPaths: []string{"/healthz", "/metrics"},
		StaticTokens:  tokens,
	}
}

// Logging converts the section to logger options.
func (cfg LogConfig) Logging() logging.Options {
	return logging.Options{
		Level: cfg.Level,
		File: logging.FileConfig{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}
}

// Sanitized returns a copy of the Config with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	clone.Auth.JWTSecret = maskSecret(clone.Auth.JWTSecret)
	clone.Auth.StaticTokens = make([]StaticToken, len(cfg.Auth.StaticTokens))
	for i, token := range cfg.Auth.StaticTokens {
		token.Token = maskSecret(token.Token)
		clone.Auth.StaticTokens[i] = token
	}
	clone.Journal.DSN = maskSecret(clone.Journal.DSN)
	if len(cfg.Telemetry.Headers) > 0 {
		clone.Telemetry.Headers = make(map[string]string, len(cfg.Telemetry.Headers))
		for k, v := range cfg.Telemetry.Headers {
			clone.Telemetry.Headers[k] = maskSecret(v)
		}
	}
	return clone
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	return "***"
}

func stringFromEnv(key, fallback string) string {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func boolFromEnv(key string, fallback bool) bool {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
