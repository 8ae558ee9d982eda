// Package telemetry adapts github.com/charmbracelet/log into a
// structured logger: key/value fields, a configurable level and
// formatter, and a component tag merged onto every entry instead of a
// free-floating process-wide logger.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options configures a Logger.
type Options struct {
	Writer    io.Writer
	Level     string
	JSON      bool
	Component string
}

// Logger is a structured logger bound to a simulation component or
// subsystem name, threaded through the Simulation Context rather than
// held as a package-level singleton.
type Logger struct {
	base   *cblog.Logger
	fields []interface{}
}

// New constructs a Logger from opts.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	level := cblog.InfoLevel
	if opts.Level != "" {
		parsed, err := cblog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	logOpts := cblog.Options{
		Level:           level,
		ReportTimestamp: true,
	}
	if opts.JSON {
		logOpts.Formatter = cblog.JSONFormatter
	}

	base := cblog.NewWithOptions(writer, logOpts)

	var fields []interface{}
	if opts.Component != "" {
		fields = []interface{}{"component", opts.Component}
	}

	return &Logger{base: base, fields: fields}, nil
}

// With derives a child Logger carrying additional persistent key/value
// fields, merged with (and overriding) the parent's.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{base: l.base, fields: mergeFields(l.fields, keyvals)}
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.base.Debug(msg, mergeFields(l.fields, keyvals)...)
}

func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.base.Info(msg, mergeFields(l.fields, keyvals)...)
}

func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.base.Warn(msg, mergeFields(l.fields, keyvals)...)
}

func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.base.Error(msg, mergeFields(l.fields, keyvals)...)
}

func mergeFields(base, additions []interface{}) []interface{} {
	store := make(map[string]interface{})
	var order []string

	add := func(values []interface{}) {
		for i := 0; i+1 < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			if _, exists := store[key]; !exists {
				order = append(order, key)
			}
			store[key] = values[i+1]
		}
	}
	add(base)
	add(additions)

	out := make([]interface{}, 0, len(order)*2)
	for _, key := range order {
		out = append(out, key, store[key])
	}
	return out
}
