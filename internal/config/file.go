package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	TCPAddr             string        `toml:"tcp_addr"`
	HTTPAddr            string        `toml:"http_addr"`
	AllowedOrigins      []string      `toml:"allowed_origins"`
	MaxConnections      int           `toml:"max_connections"`
	OutboundQueue       int           `toml:"outbound_queue"`
	MaxResends          int           `toml:"max_resends"`
	RequireChecksum     bool          `toml:"require_checksum"`
	RegistrationTimeout string        `toml:"registration_timeout"`
	IdleTimeout         string        `toml:"idle_timeout"`
	WriteTimeout        string        `toml:"write_timeout"`
	ShutdownTimeout     string        `toml:"shutdown_timeout"`
	RateLimit           fileRateLimit `toml:"rate_limit"`
}

type fileRateLimit struct {
	Burst          int    `toml:"burst"`
	RefillInterval string `toml:"refill_interval"`
}

// applyFile overlays the keys present in the TOML file at path onto cfg.
func applyFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load relay config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("load relay config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("tcp_addr") {
		cfg.TCPAddr = raw.TCPAddr
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = raw.HTTPAddr
	}
	if meta.IsDefined("allowed_origins") {
		cfg.AllowedOrigins = append([]string(nil), raw.AllowedOrigins...)
	}
	if meta.IsDefined("max_connections") {
		cfg.MaxConnections = raw.MaxConnections
	}
	if meta.IsDefined("outbound_queue") {
		cfg.OutboundQueue = raw.OutboundQueue
	}
	if meta.IsDefined("max_resends") {
		cfg.MaxResends = raw.MaxResends
	}
	if meta.IsDefined("require_checksum") {
		cfg.RequireChecksum = raw.RequireChecksum
	}
	if meta.IsDefined("rate_limit", "burst") {
		cfg.RateLimit.Burst = raw.RateLimit.Burst
	}

	durations := []struct {
		key  []string
		raw  string
		dest *time.Duration
	}{
		{[]string{"registration_timeout"}, raw.RegistrationTimeout, &cfg.RegistrationTimeout},
		{[]string{"idle_timeout"}, raw.IdleTimeout, &cfg.IdleTimeout},
		{[]string{"write_timeout"}, raw.WriteTimeout, &cfg.WriteTimeout},
		{[]string{"shutdown_timeout"}, raw.ShutdownTimeout, &cfg.ShutdownTimeout},
		{[]string{"rate_limit", "refill_interval"}, raw.RateLimit.RefillInterval, &cfg.RateLimit.RefillInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dest = parsed
	}
	return nil
}
