package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	friendly "github.com/tturner/mcgw/internal/errors"
)

// clearEnv blanks every variable Load looks at.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PLC_IP", "PLC_PORT", "PLC_TIMEOUT_SEC", "PLC_DRIVE",
		"MCGW_PLC_HOST", "MCGW_PLC_PORT", "MCGW_PLC_TIMEOUT", "MCGW_FILES_DRIVE",
		"MCGW_LOGGING_LEVEL", "MCGW_FILES_LAYOUT",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcgw.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty host", func(c *Config) { c.PLC.Host = "" }, "Host"},
		{"port out of range", func(c *Config) { c.PLC.Port = 70000 }, "Port"},
		{"zero timeout", func(c *Config) { c.PLC.Timeout = 0 }, "Timeout"},
		{"unknown series", func(c *Config) { c.PLC.Series = "FX" }, "Series"},
		{"unknown layout", func(c *Config) { c.Files.Layout = "middle" }, "Layout"},
		{"chunk too large", func(c *Config) { c.Files.ChunkSize = 1921 }, "ChunkSize"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Level"},
		{"bad listen", func(c *Config) { c.Gateway.Listen = "nope" }, "Listen"},
		{"persist without store", func(c *Config) { c.Gateway.Persist = true }, "gateway.persist"},
		{"s3 without bucket", func(c *Config) { c.Store.Type = "s3" }, "bucket"},
		{"list count over page", func(c *Config) { c.Files.ListCount = 300 }, "list_count"},
		{"duplicate drive", func(c *Config) {
			c.Emulator.Drives = []DriveConfig{{Number: 4, Dir: "a"}, {Number: 4, Dir: "b"}}
		}, "duplicate drive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
plc:
  host: 192.168.3.39
  port: 1025
  timeout: 1500ms
  series: Q
files:
  drive: 2
  layout: tail
logging:
  level: debug
store:
  type: fs
  options:
    dir: /tmp/out
`)

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PLC.Host != "192.168.3.39" || cfg.PLC.Port != 1025 || cfg.PLC.Series != "Q" {
		t.Errorf("plc = %+v", cfg.PLC)
	}
	if cfg.PLC.Timeout != 1500*time.Millisecond {
		t.Errorf("timeout = %v", cfg.PLC.Timeout)
	}
	if cfg.Files.Drive != 2 || cfg.Files.Layout != "tail" {
		t.Errorf("files = %+v", cfg.Files)
	}
	// unspecified keys keep their defaults
	if cfg.Files.DefaultPath != "$MELPRJ$" || cfg.Files.ChunkSize != 1920 || cfg.PLC.PC != 0xFF {
		t.Errorf("defaults not applied: %+v %+v", cfg.Files, cfg.PLC)
	}
	if cfg.Store.Type != "fs" || cfg.Store.Options["dir"] != "/tmp/out" {
		t.Errorf("store = %+v", cfg.Store)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "plc:\n  host: 10.0.0.1\n")

	t.Setenv("MCGW_PLC_HOST", "10.0.0.2")
	t.Setenv("MCGW_FILES_LAYOUT", "leading")
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PLC.Host != "10.0.0.2" || cfg.Files.Layout != "leading" {
		t.Errorf("env overrides not applied: host=%s layout=%s", cfg.PLC.Host, cfg.Files.Layout)
	}
}

func TestLoadLegacyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLC_IP", "172.16.0.5")
	t.Setenv("PLC_PORT", "5010")
	t.Setenv("PLC_TIMEOUT_SEC", "2.5")
	t.Setenv("PLC_DRIVE", "0")

	cfg, err := Load(writeConfig(t, "{}\n"), false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PLC.Host != "172.16.0.5" || cfg.PLC.Port != 5010 {
		t.Errorf("plc = %+v", cfg.PLC)
	}
	if cfg.PLC.Timeout != 2500*time.Millisecond {
		t.Errorf("timeout = %v, want 2.5s", cfg.PLC.Timeout)
	}
	if cfg.Files.Drive != 0 {
		t.Errorf("drive = %d, want 0", cfg.Files.Drive)
	}

	t.Setenv("PLC_TIMEOUT_SEC", "soon")
	if _, err := Load(writeConfig(t, "{}\n"), false); err == nil {
		t.Error("expected error for non-numeric PLC_TIMEOUT_SEC")
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "mcgw.yaml")

	_, err := Load(path, false)
	var ufe friendly.UserFriendlyError
	if !errors.As(err, &ufe) {
		t.Fatalf("error = %v, want UserFriendlyError", err)
	}

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load with autoCreate failed: %v", err)
	}
	if cfg.PLC.Port != 5511 || cfg.Gateway.Listen != "127.0.0.1:8001" {
		t.Errorf("created config = %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, "plc:\n  series: FX\n"), false); err == nil {
		t.Error("expected validation error")
	}
	if _, err := Load(writeConfig(t, "plc: [unterminated\n"), false); err == nil {
		t.Error("expected parse error")
	}
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "mcgw.yaml")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.PLC != want.PLC || cfg.Files != want.Files || cfg.Gateway != want.Gateway {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", cfg, want)
	}
}
