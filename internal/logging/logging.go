// Package logging builds the zerolog loggers used by the relay binaries and
// tests.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "GORELAY_LOG_LEVEL"
	EnvLogTimestamp = "GORELAY_LOG_TIMESTAMP"
	EnvLogNoColor   = "GORELAY_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Options controls logger construction. Zero values are filled from the
// profile defaults and the environment.
type Options struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
}

func defaultOptions(profile Profile) Options {
	switch profile {
	case ProfileTest:
		return Options{Level: zerolog.DebugLevel, Timestamp: false, NoColor: true}
	default:
		return Options{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

// New returns a console logger writing to out, tagged with app.
func New(profile Profile, app string, out io.Writer) zerolog.Logger {
	opts := defaultOptions(profile)
	applyEnvOverrides(&opts)

	writer := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    opts.NoColor,
		TimeFormat: time.RFC3339,
	}
	ctx := zerolog.New(writer).Level(opts.Level).With()
	if opts.Timestamp {
		ctx = ctx.Timestamp()
	}
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	return ctx.Logger()
}

// ConfigureRuntime builds the process logger on stderr and installs it as
// the zerolog global.
func ConfigureRuntime(app string) zerolog.Logger {
	logger := New(ProfileRuntime, app, os.Stderr)
	log.Logger = logger
	return logger
}

func applyEnvOverrides(opts *Options) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		opts.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		opts.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		opts.NoColor = v
	}
}

// ParseLevel accepts zerolog level names plus "warning" and a few aliases
// for "off".
func ParseLevel(raw string) (zerolog.Level, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return zerolog.InfoLevel, false
	case "warning":
		return zerolog.WarnLevel, true
	case "off", "none":
		return zerolog.Disabled, true
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel, false
	}
	return lvl, true
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
