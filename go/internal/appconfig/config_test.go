package appconfig

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flashsum.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLASH_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(*cfg, Default()) {
		t.Fatalf("cfg = %+v, want defaults", *cfg)
	}
	if cfg.Fullscreen.PollInterval() != 50*time.Millisecond {
		t.Fatalf("poll interval = %v", cfg.Fullscreen.PollInterval())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
surface:
  event_transport: nats
nats:
  enabled: true
  url: nats://broker:4222
practice:
  session:
    digits_per_number: 3
    number_duration_seconds: 0.4
    delay_between_numbers_seconds: 0
    total_numbers: 15
    allow_negative_numbers: true
  auto_repeat:
    enabled: true
    repeats: 5
    delay_seconds: 10
`)
	t.Setenv("FLASH_LOG_LEVEL", "warn")
	t.Setenv("SURFACE_ADDR", ":9999")
	t.Setenv("FULLSCREEN_ATTEMPTS", "12")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q, env should win over file", cfg.Log.Level)
	}
	if cfg.Surface.Addr != ":9999" || cfg.Surface.EventTransport != TransportNATS {
		t.Errorf("surface = %+v", cfg.Surface)
	}
	if cfg.NATS.URL != "nats://broker:4222" || !cfg.NATS.Enabled || cfg.NATS.Stream != "FLASH_EVENTS" {
		t.Errorf("nats = %+v", cfg.NATS)
	}
	if cfg.Fullscreen.Attempts != 12 {
		t.Errorf("attempts = %d", cfg.Fullscreen.Attempts)
	}
	want := []string{"http://a.test", "http://b.test"}
	if !reflect.DeepEqual(cfg.Backend.AllowedOrigins, want) || !reflect.DeepEqual(cfg.Surface.AllowedOrigins, want) {
		t.Errorf("origins = %v / %v", cfg.Backend.AllowedOrigins, cfg.Surface.AllowedOrigins)
	}
	if cfg.Practice.Session.TotalNumbers != 15 || !cfg.Practice.Session.AllowNegativeNumbers {
		t.Errorf("practice session = %+v", cfg.Practice.Session)
	}
	if ar := cfg.Practice.AutoRepeat; ar == nil || !ar.Enabled || ar.Repeats != 5 {
		t.Errorf("auto repeat = %+v", ar)
	}
}

func TestLoadUsesFlashConfigEnv(t *testing.T) {
	path := writeConfig(t, "history:\n  keep: 3\n")
	t.Setenv("FLASH_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History.Keep != 3 {
		t.Fatalf("keep = %d", cfg.History.Keep)
	}
}

func TestCommandTimeoutFromEnv(t *testing.T) {
	t.Setenv("FLASH_CONFIG", "")
	t.Setenv("BACKEND_COMMAND_TIMEOUT_MS", "2500")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Backend.CommandTimeout(); got != 2500*time.Millisecond {
		t.Fatalf("command timeout = %v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
	if _, err := Load(writeConfig(t, "log: [unclosed")); err == nil {
		t.Fatalf("malformed yaml accepted")
	}
}

func TestInvalidEnvValuesKeepDefaults(t *testing.T) {
	t.Setenv("FLASH_CONFIG", "")
	t.Setenv("FULLSCREEN_POLL_MS", "soon")
	t.Setenv("FLASH_LOG_PRETTY", "maybe")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fullscreen.PollIntervalMs != 50 || !cfg.Log.Pretty {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unknown transport", mutate: func(c *Config) { c.Surface.EventTransport = "carrier-pigeon" }},
		{name: "unknown fullscreen mode", mutate: func(c *Config) { c.Fullscreen.Mode = "kiosk" }},
		{name: "zero attempts", mutate: func(c *Config) { c.Fullscreen.Attempts = 0 }},
		{name: "missing backend url", mutate: func(c *Config) { c.Backend.URL = "" }},
		{name: "zero command timeout", mutate: func(c *Config) { c.Backend.CommandTimeoutMs = 0 }},
		{name: "nats without stream", mutate: func(c *Config) { c.NATS.Enabled = true; c.NATS.Stream = "" }},
		{name: "negative keep", mutate: func(c *Config) { c.History.Keep = -1 }},
		{name: "zero rate", mutate: func(c *Config) { c.Surface.MessagesPerSecond = 0 }},
		{name: "bad practice session", mutate: func(c *Config) { c.Practice.Session.TotalNumbers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate accepted invalid config")
			}
			if tt.name != "bad practice session" && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
