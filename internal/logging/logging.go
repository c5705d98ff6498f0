// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, output format and an optional rotated log file.
type Options struct {
	Level  string
	Format string // "console" or "json"
	File   string

	// Out defaults to os.Stderr.
	Out io.Writer
}

// New returns a logger writing to Out and, when File is set, to a rotated file.
// The returned closer releases the file and is safe to call when no file is used.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("log level %q: %w", opts.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var console io.Writer
	switch opts.Format {
	case "", "console":
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	case "json":
		console = out
	default:
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("log format %q: want console or json", opts.Format)
	}

	var closer io.Closer = nopCloser{}
	w := console
	if opts.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		closer = rotated
		w = zerolog.MultiLevelWriter(console, rotated)
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
