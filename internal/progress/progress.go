// Package progress defines the leveled sink through which the send workflow
// narrates what it is doing.
package progress

import (
	"fmt"

	"go.uber.org/zap"
)

// Level classifies a progress message.
type Level int

const (
	// LevelDebug is verbose narration, shown only with --verbose.
	LevelDebug Level = iota
	// LevelInfo marks workflow milestones.
	LevelInfo
	// LevelWarn carries non-fatal problems such as teardown failures.
	LevelWarn
	// LevelError carries the fatal outcome.
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (level Level) String() string {
	if name, known := levelNames[level]; known {
		return name
	}
	return fmt.Sprintf("level(%d)", int(level))
}

// Sink receives leveled progress messages.
type Sink interface {
	Report(level Level, message string)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(Level, string)

// Report invokes the underlying function.
func (sinkFunc SinkFunc) Report(level Level, message string) {
	sinkFunc(level, message)
}

// Discard drops every message.
var Discard Sink = SinkFunc(func(Level, string) {})

// Reportf formats and reports a message.
func Reportf(sink Sink, level Level, format string, arguments ...any) {
	sink.Report(level, fmt.Sprintf(format, arguments...))
}

// ZapSink writes progress through a zap logger.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

// Report logs the message at the matching zap level.
func (sink *ZapSink) Report(level Level, message string) {
	switch level {
	case LevelDebug:
		sink.logger.Debug(message)
	case LevelInfo:
		sink.logger.Info(message)
	case LevelWarn:
		sink.logger.Warn(message)
	default:
		sink.logger.Error(message)
	}
}

// Entry is one recorded message.
type Entry struct {
	Level   Level
	Message string
}

// Recorder keeps every reported message in order.
type Recorder struct {
	Entries []Entry
}

// Report appends the message.
func (recorder *Recorder) Report(level Level, message string) {
	recorder.Entries = append(recorder.Entries, Entry{Level: level, Message: message})
}

// Messages returns the messages reported at level.
func (recorder *Recorder) Messages(level Level) []string {
	var messages []string
	for _, entry := range recorder.Entries {
		if entry.Level == level {
			messages = append(messages, entry.Message)
		}
	}
	return messages
}

var (
	_ Sink = (*ZapSink)(nil)
	_ Sink = (*Recorder)(nil)
)
