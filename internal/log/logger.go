// Package log provides the diagnostics sink used across tscap.
//
// The core parsers (pcap reader, decapsulator) report malformed input
// through a Logger instead of failing the whole stream. Library consumers
// that do not care can pass Nop().
package log

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(...interface{})                          {}
func (nopLogger) Debugf(string, ...interface{})                 {}
func (nopLogger) Info(...interface{})                           {}
func (nopLogger) Infof(string, ...interface{})                  {}
func (nopLogger) Warn(...interface{})                           {}
func (nopLogger) Warnf(string, ...interface{})                  {}
func (nopLogger) Error(...interface{})                          {}
func (nopLogger) Errorf(string, ...interface{})                 {}
func (n nopLogger) WithField(string, interface{}) Logger        { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger    { return n }
func (n nopLogger) WithError(error) Logger                      { return n }
func (nopLogger) IsDebugEnabled() bool                          { return false }
