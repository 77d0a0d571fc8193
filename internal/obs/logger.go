package obs

import (
	"io"

	"github.com/sirupsen/logrus"
)

// DefaultLogger is the logger used when a server is configured without one.
func DefaultLogger() logrus.FieldLogger {
	return logrus.StandardLogger()
}

// NopLogger returns a logger that discards everything. Handy in tests and
// for embedders that do their own logging.
func NopLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
