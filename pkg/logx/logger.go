// Package logx provides the structured, leveled logger used across every
// nudge component, plus a PerformanceLogger for timing instrumented
// operations.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus so call sites use a flat key-value calling
// convention ("msg", "key", val, "key", val, ...) instead of logrus's
// native WithField chain.
type Logger struct {
	entry     *logrus.Entry
	component string
}

// NewLogger creates a Logger at the given level ("trace", "debug",
// "info", "warn", "error") tagged with a component name that is
// attached to every emitted record.
func NewLogger(level, component string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	base.SetLevel(parseLevel(level))

	return &Logger{
		entry:     base.WithField("component", component),
		component: component,
	}
}

// NewLoggerWithWriter is like NewLogger but writes to an arbitrary
// io.Writer; used by tests to capture output.
func NewLoggerWithWriter(level, component string, w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(parseLevel(level))
	return &Logger{entry: base.WithField("component", component), component: component}
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// withFields converts a variadic call (either "k", v, "k", v, ... or a
// single map[string]interface{}) into a logrus.Fields entry.
func (l *Logger) withFields(args ...interface{}) *logrus.Entry {
	if len(args) == 1 {
		if m, ok := args[0].(map[string]interface{}); ok {
			return l.entry.WithFields(logrus.Fields(m))
		}
	}
	fields := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return l.entry.WithFields(fields)
}

func (l *Logger) Trace(msg string, args ...interface{}) { l.withFields(args...).Trace(msg) }
func (l *Logger) Debug(msg string, args ...interface{}) { l.withFields(args...).Debug(msg) }
func (l *Logger) Info(msg string, args ...interface{})  { l.withFields(args...).Info(msg) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.withFields(args...).Warn(msg) }
func (l *Logger) Error(msg string, args ...interface{}) { l.withFields(args...).Error(msg) }

// WithComponent returns a derived Logger tagged with a sub-component,
// e.g. logger.WithComponent("schedule") inside the scheduler.
func (l *Logger) WithComponent(sub string) *Logger {
	return &Logger{entry: l.entry.WithField("subcomponent", sub), component: l.component + "." + sub}
}
