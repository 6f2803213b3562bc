// Package logging configures the logrus logger shared by the host, the CLI and the tools.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options selects level, format and destination.
type Options struct {
	Level  string    // trace, debug, info, warn, error; empty means info
	Format string    // "text" or "json"; empty means text
	File   string    // optional log file, appended to; overrides Output
	Output io.Writer // defaults to os.Stderr
}

// New builds a logger from opts. The returned closer releases the log file, if any.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	var closer io.Closer = nopCloser{}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = f
	}
	logger.SetOutput(out)

	return logger, closer, nil
}

// Discard returns a logger that drops every entry.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
