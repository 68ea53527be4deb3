// Package logging provides the structured-event capability the core
// emits through: a narrow Sink interface backed by zerolog, a
// TRACE..CRITICAL severity table matching spec.md §6's log settings
// file, and a loader for that JSON sink->severity map.
package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Severity is the six-level scale from spec.md §6.
type Severity int

const (
	Trace Severity = iota
	Debug
	Info
	Warning
	Error
	Critical
)

// severityTable maps the spec's severity strings to both a Severity
// and the zerolog.Level that realizes it. zerolog tops out at
// PanicLevel, so CRITICAL is mapped to FatalLevel rather than
// inventing a level zerolog doesn't have. Emit does not use this
// level column: it writes CRITICAL events at zerolog's error level.
var severityTable = map[string]struct {
	sev   Severity
	level zerolog.Level
}{
	"TRACE":    {Trace, zerolog.TraceLevel},
	"DEBUG":    {Debug, zerolog.DebugLevel},
	"INFO":     {Info, zerolog.InfoLevel},
	"WARNING":  {Warning, zerolog.WarnLevel},
	"ERROR":    {Error, zerolog.ErrorLevel},
	"CRITICAL": {Critical, zerolog.FatalLevel},
}

// ParseSeverity resolves one of the six spec strings.
func ParseSeverity(s string) (Severity, error) {
	e, ok := severityTable[s]
	if !ok {
		return 0, fmt.Errorf("logging: unknown severity %q", s)
	}
	return e.sev, nil
}

// Sink is the capability interface every process (Router, StoragePeer,
// ClientStub, the log aggregator's own receivers) emits events through,
// replacing the source's Logger inheritance hierarchy with one narrow
// method (spec.md §9 design notes).
type Sink interface {
	Emit(level Severity, msg string, fields map[string]any)
}

// ZerologSink adapts a zerolog.Logger to Sink, filtering events below
// minLevel.
type ZerologSink struct {
	logger   zerolog.Logger
	minLevel Severity
}

// NewZerologSink wraps logger, emitting only events at or above
// minLevel.
func NewZerologSink(logger zerolog.Logger, minLevel Severity) *ZerologSink {
	return &ZerologSink{logger: logger, minLevel: minLevel}
}

// Emit implements Sink.
func (s *ZerologSink) Emit(level Severity, msg string, fields map[string]any) {
	if level < s.minLevel {
		return
	}
	var ev *zerolog.Event
	switch level {
	case Trace:
		ev = s.logger.Trace()
	case Debug:
		ev = s.logger.Debug()
	case Warning:
		ev = s.logger.Warn()
	case Error:
		ev = s.logger.Error()
	case Critical:
		ev = s.logger.Error() // the process exits separately; Fatal() would os.Exit mid-emit
	default:
		ev = s.logger.Info()
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// MultiSink fans a single Emit out to every configured sink, mirroring
// the settings file's sink->severity map: each sink applies its own
// threshold independently.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a MultiSink over the given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Emit implements Sink.
func (m *MultiSink) Emit(level Severity, msg string, fields map[string]any) {
	for _, s := range m.sinks {
		s.Emit(level, msg, fields)
	}
}

// NewConsoleSink opens a ZerologSink writing to stderr at minLevel,
// used for the settings file's reserved "console" sink name.
func NewConsoleSink(minLevel Severity) *ZerologSink {
	return NewZerologSink(zerolog.New(os.Stderr).With().Timestamp().Logger(), minLevel)
}

// NewFileSink opens path for appending and returns a ZerologSink
// writing to it at minLevel. The caller owns closing the returned
// file handle's lifetime via process exit; peers are volatile and
// short-lived per spec.md's non-goals around durability.
func NewFileSink(path string, minLevel Severity) (*ZerologSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: opening sink file %s: %w", path, err)
	}
	return NewZerologSink(zerolog.New(f).With().Timestamp().Logger(), minLevel), nil
}
