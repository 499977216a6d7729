// logger.go - Structured logging for the shroud daemon
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the daemon's root logger at the configured level.
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}
