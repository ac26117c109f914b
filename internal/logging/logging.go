// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// Setup installs the text formatter with millisecond timestamps and the given level.
func Setup(out io.Writer, level string) error {
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)
	log.SetOutput(out)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("cannot parse log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	log.Debug("debug logging enabled")
	return nil
}

// Redacted describes free text by its length so it can be logged safely.
func Redacted(s string) string {
	if s == "" {
		return "<empty>"
	}
	return fmt.Sprintf("<%d chars>", len([]rune(s)))
}
