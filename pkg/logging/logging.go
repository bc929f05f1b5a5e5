// Package logging defines the small structured-logger capability shared by
// every component in the engine, plus a logrus-backed default.
package logging

import "github.com/sirupsen/logrus"

// Logger is the capability components depend on. It is intentionally
// narrow so tests can inject a no-op or recording implementation.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOp discards everything. Useful as a default for components constructed
// without an explicit logger.
type NoOp struct{}

func (NoOp) Debug(string, ...interface{}) {}
func (NoOp) Info(string, ...interface{})  {}
func (NoOp) Warn(string, ...interface{})  {}
func (NoOp) Error(string, ...interface{}) {}

// Logrus adapts a *logrus.Logger (or the package-level std logger) to Logger,
// pairing trailing key/value pairs the way logrus.WithFields expects.
type Logrus struct {
	entry *logrus.Entry
}

// NewLogrus wraps l (or logrus.StandardLogger() if l is nil) as a Logger.
func NewLogrus(l *logrus.Logger) *Logrus {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Logrus{entry: logrus.NewEntry(l)}
}

func (l *Logrus) fields(args []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

func (l *Logrus) Debug(msg string, args ...interface{}) {
	l.entry.WithFields(l.fields(args)).Debug(msg)
}

func (l *Logrus) Info(msg string, args ...interface{}) {
	l.entry.WithFields(l.fields(args)).Info(msg)
}

func (l *Logrus) Warn(msg string, args ...interface{}) {
	l.entry.WithFields(l.fields(args)).Warn(msg)
}

func (l *Logrus) Error(msg string, args ...interface{}) {
	l.entry.WithFields(l.fields(args)).Error(msg)
}
