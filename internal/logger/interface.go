package logger

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/vpsmonitor/vps-agent/internal/errors"
)

// Logger defines the interface for logging operations.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
	WarnWithCode(err errors.Error) *LogEvent
}

type global struct{}

// Default returns a Logger writing through the global logger configured by
// Init.
func Default() Logger {
	return global{}
}

func (global) Debug() *LogEvent { return Debug() }
func (global) Info() *LogEvent  { return Info() }
func (global) Warn() *LogEvent  { return Warn() }
func (global) Error() *LogEvent { return Error() }

func (global) ErrorWithCode(err errors.Error) *LogEvent {
	return ErrorWithCode(err)
}

func (global) WarnWithCode(err errors.Error) *LogEvent {
	return WarnWithCode(err)
}

type instance struct {
	zl zerolog.Logger
}

// New returns a Logger writing JSON lines to w, independent of the global
// logger's sinks.
func New(w io.Writer) Logger {
	return instance{zl: zerolog.New(w).With().Timestamp().Logger()}
}

func (l instance) Debug() *LogEvent { return &LogEvent{l.zl.Debug()} }
func (l instance) Info() *LogEvent  { return &LogEvent{l.zl.Info()} }
func (l instance) Warn() *LogEvent  { return &LogEvent{l.zl.Warn()} }
func (l instance) Error() *LogEvent { return &LogEvent{l.zl.Error()} }

func (l instance) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(l.zl.Error(), err)
}

func (l instance) WarnWithCode(err errors.Error) *LogEvent {
	return withCode(l.zl.Warn(), err)
}
