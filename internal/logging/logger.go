// Package logging provides structured logging for Comanda.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is a map of structured log fields.
type Fields map[string]any

var (
	// global logger instance
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger with the given output and level.
// Levels are the usual debug, info, warn, error; anything unknown
// falls back to info.
func Init(out io.Writer, level string) {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(out)
		l.SetFormatter(&logrus.JSONFormatter{})

		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			parsed = logrus.InfoLevel
		}
		l.SetLevel(parsed)

		global = l
	})
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	if global == nil {
		Init(os.Stdout, "info")
	}
	return global
}

// Debug logs a debug message with optional fields.
func Debug(message string, fields ...Fields) {
	entry(fields...).Debug(message)
}

// Info logs an info message with optional fields.
func Info(message string, fields ...Fields) {
	entry(fields...).Info(message)
}

// Warn logs a warning message with optional fields.
func Warn(message string, fields ...Fields) {
	entry(fields...).Warn(message)
}

// Error logs an error message with optional fields.
func Error(message string, err error, fields ...Fields) {
	e := entry(fields...)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(message)
}

// entry merges the field maps into a single logrus entry.
func entry(fields ...Fields) *logrus.Entry {
	merged := logrus.Fields{}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return Get().WithFields(merged)
}
