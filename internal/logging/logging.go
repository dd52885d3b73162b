// Package logging builds the process logger.
package logging

import "go.uber.org/zap"

// New returns a development logger (console, debug level) when debug is
// set, otherwise a production JSON logger.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Must is New for main packages: it falls back to a no-op logger.
func Must(debug bool) *zap.Logger {
	l, err := New(debug)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
