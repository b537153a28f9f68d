// Package logging builds the charmbracelet/log loggers used across the
// service.
package logging

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// New creates the root logger writing to w. Debug enables debug output,
// which includes full AI prompts and replies.
func New(w io.Writer, debug bool) *log.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}

	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           level,
	})
}

// ForComponent returns a child of base that prefixes every entry with
// the component name.
func ForComponent(base *log.Logger, component string) *log.Logger {
	return base.WithPrefix(component)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
