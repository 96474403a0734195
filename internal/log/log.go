// Package log provides the structured logger used across the correlation
// core, the dissector adapter and the CLI.
package log

import "sync"

// Logger is the logging surface every package in this module depends on.
// Kept as an interface (rather than depending on logrus directly
// everywhere) so tests can swap in a recording logger.
type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	once   sync.Once
	logger Logger = newLogrusLogger()
)

// GetLogger returns the process-wide logger. Safe before Init is called —
// it falls back to a default logrus logger writing to stderr.
func GetLogger() Logger {
	return logger
}

// Init configures the process-wide logger from LoggerConfig. Only the
// first call takes effect.
func Init(cfg *LoggerConfig) error {
	var initErr error
	once.Do(func() {
		initErr = initByConfig(cfg)
	})
	return initErr
}
