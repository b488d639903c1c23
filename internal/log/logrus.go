package log

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = &logrusLogger{log: logrus.New()}

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	return logger
}

// Init configures the global logger level, format and output.
// An empty level defaults to "info", an empty format to "text".
func Init(level, format string, out io.Writer) error {
	if level == "" {
		level = "info"
	}
	l, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log: invalid level %q: %w", level, err)
	}
	logger.log.SetLevel(l)
	if format == "json" {
		logger.log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if out != nil {
		logger.log.SetOutput(out)
	}
	return nil
}

type logrusLogger struct {
	log *logrus.Logger
}

func (l *logrusLogger) Debug(args ...interface{}) { l.log.Debug(args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

func (l *logrusLogger) Info(args ...interface{}) { l.log.Info(args...) }
func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

func (l *logrusLogger) Warn(args ...interface{}) { l.log.Warn(args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{}) {
	l.log.Warnf(format, args...)
}

func (l *logrusLogger) Error(args ...interface{}) { l.log.Error(args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

func (l *logrusLogger) WithField(field string, value interface{}) Logger {
	return &logrusEntry{entry: l.log.WithField(field, value)}
}

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusEntry{entry: l.log.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusEntry{entry: l.log.WithError(err)}
}

func (l *logrusLogger) IsDebugEnabled() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}

// logrusEntry wraps a logrus.Entry so chained WithField calls keep working.
type logrusEntry struct {
	entry *logrus.Entry
}

func (e *logrusEntry) Debug(args ...interface{}) { e.entry.Debug(args...) }
func (e *logrusEntry) Debugf(format string, args ...interface{}) {
	e.entry.Debugf(format, args...)
}

func (e *logrusEntry) Info(args ...interface{}) { e.entry.Info(args...) }
func (e *logrusEntry) Infof(format string, args ...interface{}) {
	e.entry.Infof(format, args...)
}

func (e *logrusEntry) Warn(args ...interface{}) { e.entry.Warn(args...) }
func (e *logrusEntry) Warnf(format string, args ...interface{}) {
	e.entry.Warnf(format, args...)
}

func (e *logrusEntry) Error(args ...interface{}) { e.entry.Error(args...) }
func (e *logrusEntry) Errorf(format string, args ...interface{}) {
	e.entry.Errorf(format, args...)
}

func (e *logrusEntry) WithField(field string, value interface{}) Logger {
	return &logrusEntry{entry: e.entry.WithField(field, value)}
}

func (e *logrusEntry) WithFields(fields map[string]interface{}) Logger {
	return &logrusEntry{entry: e.entry.WithFields(logrus.Fields(fields))}
}

func (e *logrusEntry) WithError(err error) Logger {
	return &logrusEntry{entry: e.entry.WithError(err)}
}

func (e *logrusEntry) IsDebugEnabled() bool {
	return e.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
