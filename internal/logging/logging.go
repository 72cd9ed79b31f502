// Package logging sets up the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Options selects level, format and destination.
type Options struct {
	Level  string
	Format string // "text" or "json"
	Output io.Writer
	Quiet  bool
	Color  bool
}

// New returns a logger configured by opts.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()
	if err := Configure(logger, opts); err != nil {
		return nil, err
	}
	return logger, nil
}

// Configure applies opts to logger.
func Configure(logger *logrus.Logger, opts Options) error {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	case "", "text":
		logger.SetFormatter(&prefixed.TextFormatter{
			ForceColors:     opts.Color,
			DisableColors:   !opts.Color,
			ForceFormatting: true,
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		return fmt.Errorf("invalid log format %q", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Quiet {
		out = io.Discard
	}
	logger.SetOutput(out)
	return nil
}

// OpenOutput resolves a logging.output_path setting to a writer. "stdout",
// "stderr" and "" map to the standard streams; anything else is a file
// opened for append. The returned close function is never nil.
func OpenOutput(path string) (io.Writer, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(path)) {
	case "", "stderr":
		return os.Stderr, func() error { return nil }, nil
	case "stdout":
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, f.Close, nil
}
