// Package appconfig loads the configuration shared by the flashd backend and
// the trainer surface: defaults, then an optional YAML file, then environment
// overrides.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/flashsum/go/internal/flash/session"
	"gopkg.in/yaml.v3"
)

const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"

	FullscreenSurface = "surface"
	FullscreenVirtual = "virtual"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Backend    BackendConfig    `yaml:"backend"`
	Surface    SurfaceConfig    `yaml:"surface"`
	NATS       NATSConfig       `yaml:"nats"`
	Fullscreen FullscreenConfig `yaml:"fullscreen"`
	History    HistoryConfig    `yaml:"history"`
	Practice   PracticeConfig   `yaml:"practice"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type BackendConfig struct {
	Addr           string   `yaml:"addr"`
	URL            string   `yaml:"url"` // where the surface reaches the backend
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Bound on one backend command issued by the surface.
	CommandTimeoutMs int `yaml:"command_timeout_ms"`
}

func (b BackendConfig) CommandTimeout() time.Duration {
	return time.Duration(b.CommandTimeoutMs) * time.Millisecond
}

type SurfaceConfig struct {
	Addr           string   `yaml:"addr"`
	EventsURL      string   `yaml:"events_url"`
	EventTransport string   `yaml:"event_transport"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Inbound client message limit per connection.
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	MessageBurst      int     `yaml:"message_burst"`
}

type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type FullscreenConfig struct {
	Mode           string `yaml:"mode"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	Attempts       int    `yaml:"attempts"`
}

func (f FullscreenConfig) PollInterval() time.Duration {
	return time.Duration(f.PollIntervalMs) * time.Millisecond
}

type HistoryConfig struct {
	Path string `yaml:"path"`
	Keep int    `yaml:"keep"`
}

// PracticeConfig is what a bare start request uses.
type PracticeConfig struct {
	Session    session.Config            `yaml:"session"`
	AutoRepeat *session.AutoRepeatConfig `yaml:"auto_repeat"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Pretty: true},
		Backend: BackendConfig{
			Addr:             ":8080",
			URL:              "http://localhost:8080",
			AllowedOrigins:   []string{"*"},
			CommandTimeoutMs: 15000,
		},
		Surface: SurfaceConfig{
			Addr:              ":8090",
			EventsURL:         "ws://localhost:8080/ws/events",
			EventTransport:    TransportWebSocket,
			AllowedOrigins:    []string{"*"},
			MessagesPerSecond: 20,
			MessageBurst:      40,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Stream:        "FLASH_EVENTS",
			SubjectPrefix: "flash.events",
		},
		Fullscreen: FullscreenConfig{
			Mode:           FullscreenSurface,
			PollIntervalMs: 50,
			Attempts:       40,
		},
		History: HistoryConfig{
			Path: "data/history.db",
			Keep: 500,
		},
		Practice: PracticeConfig{
			Session: session.Config{
				DigitsPerNumber:            2,
				NumberDurationSeconds:      0.8,
				DelayBetweenNumbersSeconds: 0.2,
				TotalNumbers:               10,
			},
		},
	}
}

// Load builds the configuration. An empty path falls back to FLASH_CONFIG;
// when neither is set only defaults and environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("FLASH_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Log.Level = getEnv("FLASH_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Pretty = getEnvAsBool("FLASH_LOG_PRETTY", cfg.Log.Pretty)

	cfg.Backend.Addr = getEnv("BACKEND_ADDR", cfg.Backend.Addr)
	cfg.Backend.URL = getEnv("BACKEND_URL", cfg.Backend.URL)
	cfg.Backend.CommandTimeoutMs = getEnvAsInt("BACKEND_COMMAND_TIMEOUT_MS", cfg.Backend.CommandTimeoutMs)

	cfg.Surface.Addr = getEnv("SURFACE_ADDR", cfg.Surface.Addr)
	cfg.Surface.EventsURL = getEnv("EVENTS_URL", cfg.Surface.EventsURL)
	cfg.Surface.EventTransport = getEnv("EVENT_TRANSPORT", cfg.Surface.EventTransport)

	if origins := getEnvAsList("ALLOWED_ORIGINS"); origins != nil {
		cfg.Backend.AllowedOrigins = origins
		cfg.Surface.AllowedOrigins = origins
	}

	cfg.NATS.Enabled = getEnvAsBool("NATS_ENABLED", cfg.NATS.Enabled)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Stream = getEnv("NATS_STREAM", cfg.NATS.Stream)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	cfg.Fullscreen.Mode = getEnv("FULLSCREEN_MODE", cfg.Fullscreen.Mode)
	cfg.Fullscreen.PollIntervalMs = getEnvAsInt("FULLSCREEN_POLL_MS", cfg.Fullscreen.PollIntervalMs)
	cfg.Fullscreen.Attempts = getEnvAsInt("FULLSCREEN_ATTEMPTS", cfg.Fullscreen.Attempts)

	cfg.History.Path = getEnv("HISTORY_PATH", cfg.History.Path)
}

// Validate rejects configurations the binaries cannot run with.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Backend.Addr == "" {
		fail("backend.addr is required")
	}
	if c.Backend.URL == "" {
		fail("backend.url is required")
	}
	if c.Backend.CommandTimeoutMs <= 0 {
		fail("backend.command_timeout_ms must be > 0")
	}
	if c.Surface.Addr == "" {
		fail("surface.addr is required")
	}

	switch c.Surface.EventTransport {
	case TransportWebSocket:
		if c.Surface.EventsURL == "" {
			fail("surface.events_url is required for the websocket transport")
		}
	case TransportNATS:
		if c.NATS.URL == "" {
			fail("nats.url is required for the nats transport")
		}
	default:
		fail("surface.event_transport must be %q or %q, got %q", TransportWebSocket, TransportNATS, c.Surface.EventTransport)
	}
	if c.Surface.MessagesPerSecond <= 0 || c.Surface.MessageBurst <= 0 {
		fail("surface message rate and burst must be > 0")
	}

	if c.NATS.Enabled && (c.NATS.Stream == "" || c.NATS.SubjectPrefix == "") {
		fail("nats.stream and nats.subject_prefix are required when nats is enabled")
	}

	switch c.Fullscreen.Mode {
	case FullscreenSurface, FullscreenVirtual:
	default:
		fail("fullscreen.mode must be %q or %q, got %q", FullscreenSurface, FullscreenVirtual, c.Fullscreen.Mode)
	}
	if c.Fullscreen.PollIntervalMs <= 0 || c.Fullscreen.Attempts <= 0 {
		fail("fullscreen poll interval and attempts must be > 0")
	}

	if c.History.Keep < 0 {
		fail("history.keep must be >= 0")
	}

	if err := c.Practice.Session.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("practice.session: %w", err))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
