// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	Level  string // debug, info, warn or error
	Format string // text or json
	File   string // rotated log file, empty for none
	// TUI is set when a terminal UI owns stdout/stderr. Without a log
	// file, logs are then discarded.
	TUI bool
	// Stderr overrides the console destination, for tests.
	Stderr io.Writer
}

// New creates the logger described by opts.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()

	levelName := opts.Level
	if levelName == "" {
		levelName = "info"
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch opts.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			DisableColors:   opts.File != "",
		})
	default:
		return nil, fmt.Errorf("invalid log format %q: use text or json", opts.Format)
	}

	console := opts.Stderr
	if console == nil {
		console = os.Stderr
	}

	switch {
	case opts.File != "":
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		logger.SetOutput(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	case opts.TUI:
		logger.SetOutput(io.Discard)
	default:
		logger.SetOutput(console)
	}

	return logger, nil
}

// WithComponent tags entries with the component that wrote them.
func WithComponent(logger logrus.FieldLogger, component string) logrus.FieldLogger {
	return logger.WithField("component", component)
}

// Close flushes and closes a rotating file output, if any.
func Close(logger *logrus.Logger) error {
	if c, ok := logger.Out.(io.Closer); ok && logger.Out != os.Stderr && logger.Out != os.Stdout {
		return c.Close()
	}
	return nil
}
