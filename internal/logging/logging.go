// Package logging centralizes zerolog setup. The teacher's own
// main.go used stdlib log; zerolog is adopted instead because it is
// the only structured logger anywhere in the example pack
// (github.com/TheGuyWithoutH/Node-tion) and the ambient-stack rule
// prefers a pack-demonstrated library over stdlib log.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a console-writer zerolog.Logger at the given level name
// ("debug", "info", "warn", "error"; defaults to info on a bad or
// empty value).
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}
