// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config describes logger runtime configuration.
type Config struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	TimeFormat  string `mapstructure:"time_format"`
	Caller      bool   `mapstructure:"caller"`
	PrettyPrint bool   `mapstructure:"pretty"`
}

// NewLogger builds a logger for the configured output stream.
func NewLogger(cfg Config) zerolog.Logger {
	return NewLoggerTo(cfg, outputStream(cfg.Output))
}

// NewLoggerTo builds a logger writing to out. Every entry carries a service field.
func NewLoggerTo(cfg Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	ctx := zerolog.New(encoder(cfg, out)).
		Level(ResolveLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "hourswatch")
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ResolveLevel maps a level name to a zerolog level; blank or unknown names yield info.
func ResolveLevel(name string) zerolog.Level {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func encoder(cfg Config, out io.Writer) io.Writer {
	format := strings.ToLower(cfg.Format)
	if cfg.PrettyPrint {
		format = "console"
	}
	switch format {
	case "console", "text":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat, NoColor: out != os.Stdout && out != os.Stderr}
	default:
		return out
	}
}

func outputStream(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}
