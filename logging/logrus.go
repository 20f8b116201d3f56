// Package logging provides adapters between the core.Logger interface
// and third-party logging backends.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/stealpool/forkjoin/core"
)

// LogrusLogger adapts a logrus logger to the core.Logger interface.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps the given logrus logger. A nil logger uses the
// logrus standard logger.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

// NewLogrusEntryLogger wraps an existing logrus entry, keeping any
// fields already bound to it.
func NewLogrusEntryLogger(e *logrus.Entry) *LogrusLogger {
	if e == nil {
		e = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogrusLogger{entry: e}
}

// WithFields returns a logger with the given fields bound to every
// subsequent log call.
func (l *LogrusLogger) WithFields(fields ...core.Field) *LogrusLogger {
	return &LogrusLogger{entry: l.entry.WithFields(toLogrusFields(fields))}
}

func (l *LogrusLogger) Debug(msg string, fields ...core.Field) {
	l.entry.WithFields(toLogrusFields(fields)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, fields ...core.Field) {
	l.entry.WithFields(toLogrusFields(fields)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, fields ...core.Field) {
	l.entry.WithFields(toLogrusFields(fields)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, fields ...core.Field) {
	l.entry.WithFields(toLogrusFields(fields)).Error(msg)
}

func toLogrusFields(fields []core.Field) logrus.Fields {
	if len(fields) == 0 {
		return nil
	}
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}
