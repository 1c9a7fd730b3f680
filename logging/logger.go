package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

const DefaultLogLevel = slog.LevelInfo

// Settings of the process logger, bound to the command line flags
var (
	LogLevel = DefaultLogLevel
	LogJSON  bool
	// Output is stderr so that stdout only carries the command result
	Output io.Writer = os.Stderr
)

var levels = []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

// ParseLogLevel returns the level named by name, in any case. An unknown name
// yields DefaultLogLevel and an error.
func ParseLogLevel(name string) (slog.Level, error) {
	for _, level := range levels {
		if strings.EqualFold(name, level.String()) {
			return level, nil
		}
	}
	return DefaultLogLevel, errors.Errorf("unknown log level %q", name)
}

// Options configure a logger built by New
type Options struct {
	Level  slog.Level
	JSON   bool
	Output io.Writer
}

// New returns a slog logger backed by zerolog writing to opts.Output, as
// JSON lines or in human readable console form. Errors carrying a
// pkg/errors stack have it logged.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.StampMicro}
	}
	zl := zerolog.New(out).With().Timestamp().Stack().Logger()

	return slog.New(slogzerolog.Option{Level: opts.Level, Logger: &zl}.NewZerologHandler())
}

// ConfigureLogger installs the logger described by LogLevel, LogJSON and
// Output as the slog default
func ConfigureLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack //nolint

	slog.SetDefault(New(Options{Level: LogLevel, JSON: LogJSON, Output: Output}))
}
