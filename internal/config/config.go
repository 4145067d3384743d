// Package config defines the relay server settings: defaults, a TOML file
// overlay, environment overrides and sanitisation.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the per-session packet token bucket.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay server configuration.
type Config struct {
	TCPAddr         string
	HTTPAddr        string
	AllowedOrigins  []string
	MaxConnections  int
	OutboundQueue   int
	MaxResends      int
	RequireChecksum bool

	RegistrationTimeout time.Duration
	IdleTimeout         time.Duration
	WriteTimeout        time.Duration
	ShutdownTimeout     time.Duration

	RateLimit RateLimitConfig
}

const (
	EnvTCPAddr             = "GORELAY_TCP_ADDR"
	EnvHTTPAddr            = "GORELAY_HTTP_ADDR"
	EnvAllowedOrigins      = "GORELAY_ALLOWED_ORIGINS"
	EnvMaxConnections      = "GORELAY_MAX_CONNECTIONS"
	EnvMaxResends          = "GORELAY_MAX_RESENDS"
	EnvRequireChecksum     = "GORELAY_REQUIRE_CHECKSUM"
	EnvRegistrationTimeout = "GORELAY_REGISTRATION_TIMEOUT"
	EnvIdleTimeout         = "GORELAY_IDLE_TIMEOUT"
	EnvRateLimitBurst      = "GORELAY_RATE_LIMIT_BURST"
	EnvRateLimitRefill     = "GORELAY_RATE_LIMIT_REFILL_INTERVAL"
	EnvOutboundQueue       = "GORELAY_OUTBOUND_QUEUE"
	EnvWriteTimeout        = "GORELAY_WRITE_TIMEOUT"
	EnvShutdownTimeout     = "GORELAY_SHUTDOWN_TIMEOUT"
)

// Default returns a Config populated with default values for all settings.
func Default() Config {
	return Config{
		TCPAddr:  ":5000",
		HTTPAddr: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxConnections:      16,
		OutboundQueue:       64,
		MaxResends:          3,
		RegistrationTimeout: 30 * time.Second,
		WriteTimeout:        10 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
	}
}

// Sanitize replaces invalid or missing values with defaults. HTTPAddr and
// IdleTimeout may legitimately be empty/zero and are left alone.
func Sanitize(cfg Config) Config {
	def := Default()

	cfg.TCPAddr = strings.TrimSpace(cfg.TCPAddr)
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = def.TCPAddr
	}
	cfg.HTTPAddr = strings.TrimSpace(cfg.HTTPAddr)
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = def.OutboundQueue
	}
	if cfg.MaxResends <= 0 {
		cfg.MaxResends = def.MaxResends
	}
	if cfg.RegistrationTimeout <= 0 {
		cfg.RegistrationTimeout = def.RegistrationTimeout
	}
	if cfg.IdleTimeout < 0 {
		cfg.IdleTimeout = 0
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	cfg.AllowedOrigins = parseOrigins(strings.Join(cfg.AllowedOrigins, ","))
	return cfg
}

// Load builds the effective configuration: defaults, then the TOML file at
// path (if any), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := applyFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	ApplyEnv(&cfg)
	return Sanitize(cfg), nil
}

// ApplyEnv overrides cfg from environment variables. Unset or unparsable
// variables leave the current value in place.
func ApplyEnv(cfg *Config) {
	if addr := os.Getenv(EnvTCPAddr); addr != "" {
		cfg.TCPAddr = addr
	}
	if addr, ok := os.LookupEnv(EnvHTTPAddr); ok {
		cfg.HTTPAddr = addr
	}
	if origins := os.Getenv(EnvAllowedOrigins); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if v := os.Getenv(EnvMaxConnections); v != "" {
		cfg.MaxConnections = parseIntValue(v, cfg.MaxConnections)
	}
	if v := os.Getenv(EnvMaxResends); v != "" {
		cfg.MaxResends = parseIntValue(v, cfg.MaxResends)
	}
	if v := os.Getenv(EnvRequireChecksum); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.RequireChecksum = b
		}
	}
	if v := os.Getenv(EnvRegistrationTimeout); v != "" {
		cfg.RegistrationTimeout = parseDuration(v, cfg.RegistrationTimeout)
	}
	if v := os.Getenv(EnvIdleTimeout); v != "" {
		cfg.IdleTimeout = parseDuration(v, cfg.IdleTimeout)
	}
	if v := os.Getenv(EnvOutboundQueue); v != "" {
		cfg.OutboundQueue = parseIntValue(v, cfg.OutboundQueue)
	}
	if v := os.Getenv(EnvWriteTimeout); v != "" {
		cfg.WriteTimeout = parseDuration(v, cfg.WriteTimeout)
	}
	if v := os.Getenv(EnvShutdownTimeout); v != "" {
		cfg.ShutdownTimeout = parseDuration(v, cfg.ShutdownTimeout)
	}
	if v := os.Getenv(EnvRateLimitBurst); v != "" {
		cfg.RateLimit.Burst = parseIntValue(v, cfg.RateLimit.Burst)
	}
	if v := os.Getenv(EnvRateLimitRefill); v != "" {
		cfg.RateLimit.RefillInterval = parseDuration(v, cfg.RateLimit.RefillInterval)
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	return defaultValue
}
