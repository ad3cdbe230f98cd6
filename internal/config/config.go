// Package config loads node and hub settings from the environment.
//
// Values come from BTBMESH_* environment variables, optionally seeded from a
// .env file. Command-line flags in cmd/ override them.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/SWAI-Ltd/btbmesh/internal/checksum"
	"github.com/SWAI-Ltd/btbmesh/internal/proto"
)

// Prefix is the environment variable prefix.
const Prefix = "BTBMESH"

// Config validation errors
var (
	ErrInvalidManufacturerCode = errors.New("mfg_code must be 1-4 hex digits")
	ErrInvalidDebugMode        = errors.New("debug_mode must be 0, 1 or 2")
	ErrInvalidTickInterval     = errors.New("tick_interval must be positive")
	ErrInvalidDelay            = errors.New("local_delay, relay_delay and backoff_delay must be positive")
	ErrInvalidQueueDepth       = errors.New("queue_depth must be positive")
	ErrInvalidMaxCandidates    = errors.New("max_candidates must be positive")
	ErrInvalidMaxDraws         = errors.New("max_draws must be positive")
	ErrInvalidLogFormat        = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel         = errors.New("log_level must be debug, info, warn, or error")
)

// Config is the full configuration surface of a node.
type Config struct {
	NodeID     string `envconfig:"NODE_ID" default:"node"`
	Passphrase string `envconfig:"PASSPHRASE" default:""`
	MfgCode    string `envconfig:"MFG_CODE" default:"1122"`
	MeshMode   bool   `envconfig:"MESH_MODE" default:"true"`
	DebugMode  int    `envconfig:"DEBUG_MODE" default:"0"`

	TickInterval time.Duration `envconfig:"TICK_INTERVAL" default:"200ms"`
	LocalDelay   time.Duration `envconfig:"LOCAL_DELAY" default:"3s"`
	RelayDelay   time.Duration `envconfig:"RELAY_DELAY" default:"1s"`
	BackoffDelay time.Duration `envconfig:"BACKOFF_DELAY" default:"3s"`
	Jitter       time.Duration `envconfig:"JITTER" default:"250ms"`

	QueueDepth    int `envconfig:"QUEUE_DEPTH" default:"256"`
	MaxCandidates int `envconfig:"MAX_CANDIDATES" default:"512"`
	MaxDraws      int `envconfig:"MAX_DRAWS" default:"8"`

	HubAddr          string        `envconfig:"HUB_ADDR" default:""`
	DisableDiscovery bool          `envconfig:"DISABLE_DISCOVERY" default:"false"`
	DiscoveryTimeout time.Duration `envconfig:"DISCOVERY_TIMEOUT" default:"5s"`
	MetricsAddr      string        `envconfig:"METRICS_ADDR" default:""`

	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads an optional .env file (missing files are ignored) and then the
// process environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		NodeID:           "node",
		MfgCode:          "1122",
		MeshMode:         true,
		TickInterval:     200 * time.Millisecond,
		LocalDelay:       3 * time.Second,
		RelayDelay:       time.Second,
		BackoffDelay:     3 * time.Second,
		Jitter:           250 * time.Millisecond,
		QueueDepth:       256,
		MaxCandidates:    512,
		MaxDraws:         8,
		DiscoveryTimeout: 5 * time.Second,
		LogFormat:        "console",
		LogLevel:         "info",
	}
}

// Validate validates the configuration and returns an error if invalid
func Validate(cfg *Config) error {
	if _, err := proto.ParseManufacturerCode(cfg.MfgCode); err != nil {
		return ErrInvalidManufacturerCode
	}
	if cfg.DebugMode < 0 || cfg.DebugMode > 2 {
		return ErrInvalidDebugMode
	}
	if cfg.TickInterval <= 0 {
		return ErrInvalidTickInterval
	}
	if cfg.LocalDelay <= 0 || cfg.RelayDelay <= 0 || cfg.BackoffDelay <= 0 {
		return ErrInvalidDelay
	}
	if cfg.QueueDepth <= 0 {
		return ErrInvalidQueueDepth
	}
	if cfg.MaxCandidates <= 0 {
		return ErrInvalidMaxCandidates
	}
	if cfg.MaxDraws <= 0 {
		return ErrInvalidMaxDraws
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// PrivacyCode derives the privacy code from the configured passphrase.
func (c *Config) PrivacyCode() uint8 {
	return checksum.PrivacyCode(c.Passphrase)
}

// ManufacturerCode returns the parsed manufacturer code. Call Validate first.
func (c *Config) ManufacturerCode() uint16 {
	code, _ := proto.ParseManufacturerCode(c.MfgCode)
	return code
}
