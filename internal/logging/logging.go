// Package logging configures the process-wide slog handler and the
// decision audit log.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for log files.
const (
	maxSizeMB  = 10
	maxBackups = 3
)

// Options configures Setup.
type Options struct {
	// Level is shared with the handler so it can be changed at runtime.
	Level *slog.LevelVar
	// Format is "text" (colored) or "json".
	Format string
	// File, when set, sends logs to a size-rotated file instead of stderr.
	File string
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// UnderSystemd reports whether the process was started by systemd, in which
// case the journal adds its own timestamps.
func UnderSystemd() bool {
	return os.Getenv("INVOCATION_ID") != ""
}

// NewHandler builds the handler for format writing to w. noColor and
// noTime only affect the text format.
func NewHandler(w io.Writer, format string, level slog.Leveler, noColor, noTime bool) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	opts := &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}
	if noTime {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}
	return tint.NewHandler(w, opts)
}

// Setup installs the default slog logger. The returned closer flushes the
// log file, if any.
func Setup(opts Options) io.Closer {
	level := opts.Level
	if level == nil {
		level = new(slog.LevelVar)
	}

	if opts.File != "" {
		lj := newRotatingFile(opts.File)
		slog.SetDefault(slog.New(NewHandler(lj, opts.Format, level, true, false)))
		return lj
	}

	systemd := UnderSystemd()
	slog.SetDefault(slog.New(NewHandler(os.Stderr, opts.Format, level, systemd, systemd)))
	return nopCloser{}
}

func newRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,  // megabytes
		MaxBackups: maxBackups, // number of backups
		MaxAge:     0,          // don't delete old files based on age
		Compress:   false,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
