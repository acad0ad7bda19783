// Package logging builds the process logger: level, formatter, optional
// rotating log file and the relay hook feeding the UI.
package logging

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/adamancini/hatch/internal/logrelay"
)

const (
	defaultMaxSizeMB  = 1
	defaultMaxBackups = 1
	timestampFormat   = "2006-01-02T15:04:05.000Z07:00"
)

// Options controls how New assembles a logger.
type Options struct {
	// Level is a logrus level name; empty means "info".
	Level string
	// File, when set to anything but "" or "console", sends output to a
	// size-rotated file instead of Output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Output is the console writer, stderr when nil.
	Output io.Writer
	// Relay, when set, receives every entry at Info and above.
	Relay *logrelay.Relay
	// RelayDebug also sends Debug and Trace entries to the relay.
	RelayDebug bool
	// Logger is configured in place when set, typically
	// log.StandardLogger() so package-level logrus calls are covered too.
	Logger *log.Logger
}

// New creates a logger from opts. The returned close function releases the
// log file, if one was opened, and is always safe to call.
func New(opts Options) (*log.Logger, func() error, error) {
	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New()
	}
	logger.ReplaceHooks(make(log.LevelHooks))
	logger.SetLevel(lvl)
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	})

	closeFn := func() error { return nil }

	switch {
	case opts.File != "" && opts.File != "console":
		rotator := newRotator(opts)
		logger.SetOutput(rotator)
		closeFn = rotator.Close
	case opts.Output != nil:
		logger.SetOutput(opts.Output)
	default:
		logger.SetOutput(os.Stderr)
	}

	if opts.Relay != nil {
		if opts.RelayDebug {
			logger.AddHook(opts.Relay.Hook(log.AllLevels...))
		} else {
			logger.AddHook(opts.Relay.Hook())
		}
	}

	return logger, closeFn, nil
}

func newRotator(opts Options) *lumberjack.Logger {
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	backups := opts.MaxBackups
	if backups <= 0 {
		backups = defaultMaxBackups
	}
	return &lumberjack.Logger{
		Filename:   filepath.ToSlash(opts.File),
		MaxSize:    maxSize,
		MaxBackups: backups,
	}
}
