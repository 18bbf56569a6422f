// Package logging provides the structured, leveled logger used throughout
// this module. It defines a small Logger interface so components never
// import logrus directly, and a logrus-backed implementation.
package logging

import "github.com/sirupsen/logrus"

// LogLevel mirrors logrus' level ordering so callers don't need to import
// logrus to configure verbosity.
type LogLevel uint32

const (
	ErrorLevel LogLevel = iota
	WarnLevel
	InfoLevel
	DebugLevel
)

// Field is a single structured logging key/value pair.
type Field struct {
	Key   string
	Value any
}

// F constructs a Field. Named to read well at call sites: logging.F("key", v).
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger is the structured logging interface every package in this module
// depends on, never the bare stdlib log package or fmt.Println.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	SetLevel(level LogLevel)
}

// LogrusAdapter implements Logger on top of a *logrus.Logger.
type LogrusAdapter struct {
	logger *logrus.Logger
}

// NewLogrusAdapter wraps an existing *logrus.Logger.
func NewLogrusAdapter(logger *logrus.Logger) *LogrusAdapter {
	return &LogrusAdapter{logger: logger}
}

func (l *LogrusAdapter) fields(fields []Field) logrus.Fields {
	if len(fields) == 0 {
		return nil
	}
	f := make(logrus.Fields, len(fields))
	for _, field := range fields {
		f[field.Key] = field.Value
	}
	return f
}

func (l *LogrusAdapter) Debug(msg string, fields ...Field) {
	l.logger.WithFields(l.fields(fields)).Debug(msg)
}

func (l *LogrusAdapter) Info(msg string, fields ...Field) {
	l.logger.WithFields(l.fields(fields)).Info(msg)
}

func (l *LogrusAdapter) Warn(msg string, fields ...Field) {
	l.logger.WithFields(l.fields(fields)).Warn(msg)
}

func (l *LogrusAdapter) Error(msg string, fields ...Field) {
	l.logger.WithFields(l.fields(fields)).Error(msg)
}

func (l *LogrusAdapter) SetLevel(level LogLevel) {
	l.logger.SetLevel(toLogrusLevel(level))
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

// NopLogger discards everything. Useful as a safe zero value in tests.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) SetLevel(LogLevel)      {}
