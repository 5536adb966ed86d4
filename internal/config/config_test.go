package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "owie.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "normal" || cfg.HTTP.Addr != ":80" || cfg.WiFi.APIP != "192.168.4.1" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Telemetry.Interval != time.Second {
		t.Fatalf("telemetry interval = %s", cfg.Telemetry.Interval)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
mode: recovery
http:
  addr: ":8080"
telemetry:
  interval: 250ms
storage:
  driver: file
  path: /tmp/settings.yml
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "recovery" || cfg.HTTP.Addr != ":8080" {
		t.Fatalf("file values not applied: mode=%s addr=%s", cfg.Mode, cfg.HTTP.Addr)
	}
	if cfg.Telemetry.Interval != 250*time.Millisecond {
		t.Fatalf("interval = %s", cfg.Telemetry.Interval)
	}
	// untouched sections keep their defaults
	if cfg.DNS.Addr != ":53" || cfg.Restart.Delay != time.Second {
		t.Fatalf("defaults lost: dns=%s restart=%s", cfg.DNS.Addr, cfg.Restart.Delay)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OWIE_MODE", "recovery")
	t.Setenv("OWIE_HTTP_ADDR", ":9000")
	t.Setenv("OWIE_CHIP_ID", "0xBEEF")
	t.Setenv("DATABASE_URL", "postgres://owie@localhost/owie")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "recovery" || cfg.HTTP.Addr != ":9000" || cfg.WiFi.ChipID != 0xBEEF {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN == "" {
		t.Fatalf("DATABASE_URL must select postgres, got %+v", cfg.Storage)
	}
	if cfg.NATS.URL != "nats://localhost:4222" || cfg.Log.Level != "debug" {
		t.Fatalf("nats=%s log=%s", cfg.NATS.URL, cfg.Log.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "bad mode", body: "mode: turbo\n", want: "mode"},
		{name: "bad driver", body: "storage:\n  driver: sqlite\n", want: "storage driver"},
		{name: "postgres without dsn", body: "storage:\n  driver: postgres\n", want: "dsn"},
		{name: "zero interval", body: "telemetry:\n  interval: 0s\n", want: "interval"},
		{name: "bad qos", body: "mqtt:\n  qos: 3\n", want: "qos"},
		{name: "not yaml", body: "mode: [\n", want: "unmarshal"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
