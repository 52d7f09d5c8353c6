package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a set of structured fields attached to a log entry.
type Fields map[string]any

// Logger provides structured, leveled logging throughout the application.
// The printf-style methods keep call sites short; structured fields are
// attached with WithField / WithFields / WithComponent.
type Logger struct {
	entry *logrus.Entry
}

// LogOptions controls level, format and destination of the root logger.
type LogOptions struct {
	Level      string
	Format     string
	File       string
	MaxAgeDays int
}

// NewLogger creates a Logger writing text to stdout at info level.
func NewLogger() *Logger {
	l, _ := NewLoggerWithOptions(LogOptions{})
	return l
}

// NewLoggerWithOptions creates the root logger. An empty File means stdout;
// otherwise output goes through a rotating file writer.
func NewLoggerWithOptions(opts LogOptions) (*Logger, error) {
	base := logrus.New()

	level := strings.ToLower(strings.TrimSpace(opts.Level))
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return &Logger{entry: logrus.NewEntry(base)}, fmt.Errorf("logger: invalid level %q", opts.Level)
	}
	base.SetLevel(lvl)

	switch strings.ToLower(opts.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	base.SetOutput(logOutput(opts))
	return &Logger{entry: logrus.NewEntry(base)}, nil
}

func logOutput(opts LogOptions) io.Writer {
	switch opts.File {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	maxAge := opts.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 7
	}
	return &lumberjack.Logger{
		Filename: opts.File,
		MaxAge:   maxAge,
		MaxSize:  100,
		Compress: true,
	}
}

// NewNopLogger returns a Logger that discards everything. Used in tests.
func NewNopLogger() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(base)}
}

// WithField returns a child logger carrying one extra field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a child logger carrying the given fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithComponent tags every entry with the emitting component.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

// WithError attaches err under the standard "error" key.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Info(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.entry.Debugf(format, args...)
}
