package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vpsmonitor/vps-agent/internal/errors"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

var (
	log     = zerolog.New(os.Stdout).With().Timestamp().Logger()
	logFile *os.File
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Options controls where log output goes and how verbose it is.
type Options struct {
	// Level is one of debug, info, warn (or warning), error.
	Level string
	// File receives JSON lines in addition to the console. Empty disables it.
	File string
	// Service drops console timestamps; journald adds its own.
	Service bool
	// Console overrides stdout as the human readable sink.
	Console io.Writer
}

// Init (re)configures the global logger. The previous log file, if any, is
// closed.
func Init(opts Options) error {
	errFactory := errors.New()

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	output := zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.RFC3339,
	}
	if opts.Service {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	writers := []io.Writer{output}

	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), defaultDirPerm); err != nil {
			return errFactory.Wrap(errors.ErrInitFailed, err).WithData(opts.File)
		}
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, defaultFilePerm)
		if err != nil {
			return errFactory.Wrap(errors.ErrInitFailed, err).WithData(opts.File)
		}
		writers = append(writers, file)
	}

	_ = Close()
	logFile = file
	log = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(level)

	return nil
}

// Close releases the log file opened by Init.
func Close() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil

	return err
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, s)
	}
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message carrying the domain error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// WarnWithCode logs a warning carrying the domain error code
func WarnWithCode(err errors.Error) *LogEvent {
	return withCode(log.Warn(), err)
}

func withCode(e *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}
