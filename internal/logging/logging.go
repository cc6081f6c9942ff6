// Package logging builds the process-wide logrus logger from the
// catalog configuration.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger configured with the given level and output
// format. Unknown levels fall back to info rather than failing the
// process; the configured value has already been validated upstream.
func New(level, format string) *logrus.Logger {
	log := logrus.New()

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return log
}

// Nop returns a logger that discards everything below panic. Handy for
// tests and for callers that have no logging sink wired yet.
func Nop() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}
