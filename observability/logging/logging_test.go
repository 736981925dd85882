package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesCanonicalKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, " lendingd ", "test", slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("pool ready", "reserves", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for key, want := range map[string]any{"service": "lendingd", "env": "test", "severity": "INFO", "message": "pool ready", "reserves": float64(3)} {
		if entry[key] != want {
			t.Fatalf("%s = %v, want %v", key, entry[key], want)
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("timestamp missing: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSetupWithFileWritesRotatingLog(t *testing.T) {
	defaultLogger := slog.Default()
	t.Cleanup(func() { slog.SetDefault(defaultLogger) })

	path := filepath.Join(t.TempDir(), "lendingd.log")
	logger, closer, err := SetupWithOptions("lendingd", "", Options{Level: "debug", File: FileConfig{Path: path, MaxSizeMB: 1}})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Debug("snapshot saved")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"message":"snapshot saved"`) {
		t.Fatalf("log file missing entry: %s", data)
	}
	if strings.Contains(string(data), `"env"`) {
		t.Fatalf("empty env should be omitted: %s", data)
	}
}

func TestMaskField(t *testing.T) {
	addr := "0x00000000000000000000000000000000000000b0"
	if got := MaskField("user", addr).Value.String(); got != "0x0000…00b0" {
		t.Fatalf("user masked as %q", got)
	}
	if got := MaskField("jwt_secret", "hunter2").Value.String(); got != RedactedValue {
		t.Fatalf("secret leaked: %q", got)
	}
	if got := MaskField("code", "BORROW_CAP_EXCEEDED").Value.String(); got != "BORROW_CAP_EXCEEDED" {
		t.Fatalf("allowlisted key masked: %q", got)
	}
	if got := MaskField("token", "").Value.String(); got != "" {
		t.Fatalf("empty value rewritten: %q", got)
	}
}
