package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

// Package log is a thin, level-aware wrapper around the standard library
// logger, scoped to two things a kernel log line needs beyond a plain
// message: which node type/subsystem emitted it, and — when the call
// happens while a wave is in flight — which wave's trace id it belongs
// to, so a burst of lines from several nodes during one wave can be
// grepped back together.
//
// Usage:
//   l := log.ForService("sensor/dummy")
//   l.Infof("sending frame on timer trigger")
//   l.WithTrace(traceID).Warnf("queue depth high: %d", depth)
//   l.Debugf("raw frame: %v", frame) // only prints if debug enabled (globally or for "sensor/dummy")
//
// To enable debug globally:
//   log.SetGlobalDebug(true)
//
// To enable debug for a specific service only:
//   log.EnableDebugFor("sensor/dummy")
//
// NOTE: The package name intentionally collides with stdlib "log". When importing
// this package alongside the standard library, alias one of them, e.g.:
//   import (
//     stdlog "log"
//     dmmlog "github.com/rcc-msu/dimmon/pkg/log"
//   )

// Logger is a named logger, optionally tagged with a wave trace id.
type Logger struct {
	name     string
	trace    string
	std      *log.Logger
	warnOnce *sync.Once
}

// sinkHolder wraps an io.Writer so atomic.Value always stores the same
// concrete type, avoiding the "inconsistently typed value" panic when
// swapping writers at runtime (e.g. *os.File to *bytes.Buffer in tests).
type sinkHolder struct {
	w io.Writer
}

var (
	// debugAll is the global debug toggle.
	debugAll atomic.Bool

	// debugScopes holds per-service debug overrides.
	debugScopes sync.Map // map[string]*atomic.Bool

	// registry caches one Logger per service name.
	registry sync.Map // map[string]*Logger

	// sink holds the shared output destination for every logger.
	sink atomic.Value // sinkHolder
)

func init() {
	sink.Store(sinkHolder{w: os.Stderr})
}

// ForService returns (and memoizes) a named logger for the given service
// or node type. The name SHOULD be stable (e.g. the node type name).
func ForService(name string) *Logger {
	if name == "" {
		name = "unknown"
	}
	if l, ok := registry.Load(name); ok {
		return l.(*Logger)
	}
	current := sink.Load().(sinkHolder).w
	l := &Logger{
		name:     name,
		std:      log.New(current, "", log.LstdFlags|log.Lmicroseconds),
		warnOnce: &sync.Once{},
	}
	actual, _ := registry.LoadOrStore(name, l)
	return actual.(*Logger)
}

// WithTrace returns a derived logger that tags every line with id until
// another WithTrace call replaces it. The derived logger shares the
// underlying writer and debug settings of the original — only the
// prefix changes — and is cheap enough to call once per wave rather
// than memoized, since traces are one-shot by nature (kernel.Runtime
// mints a new one every WaveStart).
func (l *Logger) WithTrace(id string) *Logger {
	return &Logger{name: l.name, trace: id, std: l.std, warnOnce: l.warnOnce}
}

// SetGlobalDebug enables or disables debug logging globally.
func SetGlobalDebug(enabled bool) {
	debugAll.Store(enabled)
}

// GlobalDebug returns whether global debug logging is enabled.
func GlobalDebug() bool {
	return debugAll.Load()
}

// EnableDebugFor enables debug logging for a specific service.
func EnableDebugFor(name string) {
	if name == "" {
		return
	}
	val, _ := debugScopes.LoadOrStore(name, &atomic.Bool{})
	val.(*atomic.Bool).Store(true)
}

// DisableDebugFor disables debug logging for a specific service.
func DisableDebugFor(name string) {
	if name == "" {
		return
	}
	if val, ok := debugScopes.Load(name); ok {
		val.(*atomic.Bool).Store(false)
	}
}

// DebugEnabledFor returns whether debug is enabled for the given service
// (either globally or specifically for that service).
func DebugEnabledFor(name string) bool {
	if debugAll.Load() {
		return true
	}
	if val, ok := debugScopes.Load(name); ok {
		return val.(*atomic.Bool).Load()
	}
	return false
}

// SetOutput sets the output writer for all subsequently created loggers.
// Existing loggers also adopt the new writer.
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}
	sink.Store(sinkHolder{w: w})
	registry.Range(func(_, v any) bool {
		v.(*Logger).std.SetOutput(w)
		return true
	})
}

// prefix builds "[name>]", or "[name #trace>]" once a trace id has been
// attached via WithTrace.
func (l *Logger) prefix() string {
	if l.trace == "" {
		return "[" + l.name + ">]"
	}
	return "[" + l.name + " #" + l.trace + ">]"
}

func (l *Logger) emit(level, msg string) {
	if level != "" {
		level += " "
	}
	l.std.Println(level + l.prefix() + " " + msg)
}

// Infof logs an informational message with fmt.Sprintf semantics.
func (l *Logger) Infof(format string, args ...any) {
	l.emit(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a warning message. The first warning from a given logger is
// preceded by a one-line notice that warnings are active, so a log
// skimmed from the top doesn't miss that the stream turned noisy partway
// through.
func (l *Logger) Warnf(format string, args ...any) {
	l.warnOnce.Do(func() {
		l.emit(LevelWarn, "warnings active for this logger")
	})
	l.emit(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...any) {
	l.emit(LevelError, fmt.Sprintf(format, args...))
}

// Debugf logs a debug message if debug is enabled, globally or for this
// logger's service.
func (l *Logger) Debugf(format string, args ...any) {
	if !DebugEnabledFor(l.name) {
		return
	}
	l.emit(LevelDebug, fmt.Sprintf(format, args...))
}

// Fatalf logs an error message and terminates the process. Reserved for
// unrecoverable initialization failures (missing monotonic clock, missing
// epoll, unreadable config file, missing starter type) where continuing
// would only produce a more confusing failure later.
func (l *Logger) Fatalf(format string, args ...any) {
	l.emit(LevelError, fmt.Sprintf(format, args...))
	os.Exit(1)
}

const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelDebug = "DEBUG"
)
