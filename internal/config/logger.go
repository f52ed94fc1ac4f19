package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds a logger writing to out. Unknown levels fall back to info.
func NewLogger(cfg LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("app", "mtfbacktest").
		Logger()
}

// InitLogger builds the process logger and installs it as the zerolog
// default. Only main calls it; libraries take a logger in their constructor.
func InitLogger(cfg LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := NewLogger(cfg, os.Stderr)
	log.Logger = logger

	logger.Info().
		Str("level", logger.GetLevel().String()).
		Str("format", cfg.Format).
		Str("version", GetVersion()).
		Msg("Logger initialized")
	return logger
}
