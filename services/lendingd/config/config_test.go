package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lendcore/gateway/middleware"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
markets: " markets.toml "
tls:
  allow_insecure: true
auth:
  enabled: true
  jwt_secret: " secret "
  static_tokens:
    - token: " ops "
      subject: "0x00000000000000000000000000000000000000a0"
      scopes: [" lending:admin "]
    - token: " "
cors:
  allowed_origins: ["https://app.example", " "]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" || cfg.MarketsPath != "markets.toml" {
		t.Fatalf("unexpected listen %q markets %q", cfg.ListenAddress, cfg.MarketsPath)
	}
	if cfg.Storage.Backend != StorageMemory {
		t.Fatalf("expected memory storage by default, got %q", cfg.Storage.Backend)
	}
	if cfg.Auth.JWTSecret != "secret" || len(cfg.Auth.StaticTokens) != 1 || cfg.Auth.StaticTokens[0].Scopes[0] != middleware.ScopeAdmin {
		t.Fatalf("auth not normalized: %+v", cfg.Auth)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 {
		t.Fatalf("expected 1 origin, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.TLS.Enabled() {
		t.Fatalf("tls should be disabled without a certificate")
	}

	auth := cfg.Auth.Middleware()
	if !auth.Enabled || auth.HMACSecret != "secret" || len(auth.StaticTokens) != 1 || len(auth.OptionalPaths) != 2 {
		t.Fatalf("unexpected middleware config %+v", auth)
	}

	sanitized := cfg.Sanitized()
	if sanitized.Auth.JWTSecret != "***" || sanitized.Auth.StaticTokens[0].Token != "***" {
		t.Fatalf("secrets not masked: %+v", sanitized.Auth)
	}
	if cfg.Auth.StaticTokens[0].Token != "ops" {
		t.Fatalf("sanitizing mutated the original")
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv(envListen, "127.0.0.1:7000")
	t.Setenv(envStorage, "LevelDB")
	t.Setenv(envDataDir, "/var/lib/lendingd")
	t.Setenv(envJWTSecret, "from-env")
	t.Setenv(envOTLPHeaders, "authorization=Bearer abc")
	t.Setenv(envOTLPInsecure, "true")

	cfg, err := Load(writeConfig(t, `
markets: markets.toml
tls:
  allow_insecure: true
auth:
  enabled: true
telemetry:
  endpoint: collector:4318
  traces: true
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:7000" || cfg.Storage.Backend != StorageLevelDB || cfg.Storage.DataDir != "/var/lib/lendingd" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("jwt secret override missing")
	}
	if !cfg.Telemetry.Insecure || cfg.Telemetry.Headers["authorization"] != "Bearer abc" || !cfg.Telemetry.Traces {
		t.Fatalf("telemetry overrides: %+v", cfg.Telemetry)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"markets", "tls: {allow_insecure: true}\n", "markets"},
		{"tls pair", "markets: m.toml\ntls: {cert: server.crt}\n", "tls"},
		{"tls required", "markets: m.toml\n", "allow_insecure"},
		{"storage backend", "markets: m.toml\ntls: {allow_insecure: true}\nstorage: {backend: rocks}\n", "unknown backend"},
		{"leveldb dir", "markets: m.toml\ntls: {allow_insecure: true}\nstorage: {backend: leveldb}\n", "data_dir"},
		{"bolt dir", "markets: m.toml\ntls: {allow_insecure: true}\nstorage: {backend: bolt}\n", "data_dir required for the bolt backend"},
		{"auth credentials", "markets: m.toml\ntls: {allow_insecure: true}\nauth: {enabled: true}\n", "jwt secret"},
		{"token subject", "markets: m.toml\ntls: {allow_insecure: true}\nauth: {enabled: true, static_tokens: [{token: t, subject: ops}]}\n", "not an address"},
		{"token scope", "markets: m.toml\ntls: {allow_insecure: true}\nauth: {enabled: true, static_tokens: [{token: t, subject: \"0x00000000000000000000000000000000000000a0\", scopes: [root]}]}\n", "unknown scope"},
		{"rate limit", "markets: m.toml\ntls: {allow_insecure: true}\nrate_limit: {per_minute: -1}\n", "rate_limit"},
		{"log level", "markets: m.toml\ntls: {allow_insecure: true}\nlog: {level: loud}\n", "log"},
		{"journal driver", "markets: m.toml\ntls: {allow_insecure: true}\njournal: {driver: mysql, dsn: x}\n", "unknown driver"},
		{"journal dsn", "markets: m.toml\ntls: {allow_insecure: true}\njournal: {driver: sqlite}\n", "dsn required"},
		{"stream buffer", "markets: m.toml\ntls: {allow_insecure: true}\nstream: {buffer: -1}\n", "stream"},
		{"unknown field", "markets: m.toml\nlisten_addr: \":1\"\n", "listen_addr"},
	}
	for _, tc := range cases {
		_, err := Load(writeConfig(t, tc.body))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLogConfigOptions(t *testing.T) {
	opts := LogConfig{Level: "debug", File: "/tmp/lendingd.log", MaxSizeMB: 10, Compress: true}.Logging()
	if opts.Level != "debug" || opts.File.Path != "/tmp/lendingd.log" || opts.File.MaxSizeMB != 10 || !opts.File.Compress {
		t.Fatalf("unexpected options %+v", opts)
	}
}
