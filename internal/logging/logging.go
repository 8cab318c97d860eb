// Package logging builds the zerolog logger handed to every component.
// Components receive a zerolog.Logger by value; none reach for a global.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sufield/popc/internal/config"
)

// Field names shared across packages.
const (
	FieldComponent      = "component"
	FieldVerificationID = "verification_id"
	FieldDeviceID       = "device_id"
	FieldVerdict        = "verdict"
	FieldAPIKey         = "api_key"
	FieldPeerID         = "peer_id"
)

// New returns a logger writing to w (os.Stderr when nil) at the configured
// level and format.
func New(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	switch cfg.Format {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: unsupported", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "popc").Logger(), nil
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str(FieldComponent, name).Logger()
}
