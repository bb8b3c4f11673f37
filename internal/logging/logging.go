// Package logging configures zerolog for both binaries.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds a logger writing to w. Pretty output is meant for a terminal;
// otherwise lines are JSON.
func New(w io.Writer, level string, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Setup installs the global logger on stderr and returns it.
func Setup(level string, pretty bool) zerolog.Logger {
	l := New(os.Stderr, level, pretty)
	log.Logger = l
	return l
}

// ParseLevel falls back to info for names zerolog does not know.
func ParseLevel(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
