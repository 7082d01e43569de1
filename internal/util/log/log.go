// Package log provides the structured logger used throughout edgeproxy.
//
// It wraps go-kit/log the way Trickster's internal/util/log package does:
// callers pass a message plus a Pairs map of key/value context, and the
// logger renders them as a single structured line. When a log file path is
// configured, output rotates through lumberjack instead of growing
// unbounded on disk.
package log

import (
	"io/ioutil"
	"os"
	"sync"
	"sync/atomic"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Pairs is a collection of key/value fields attached to a log line.
type Pairs map[string]interface{}

// Level enumerates the verbosity levels edgeproxy accepts from configuration.
type Level int

// Verbosity levels, lowest (most severe only) to highest.
const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var levelNames = map[string]Level{
	"error": LevelError,
	"warn":  LevelWarn,
	"info":  LevelInfo,
	"debug": LevelDebug,
	"trace": LevelTrace,
}

// ParseLevel converts a configured log level name to a Level, defaulting to
// LevelInfo for an unrecognized name.
func ParseLevel(name string) Level {
	if l, ok := levelNames[name]; ok {
		return l
	}
	return LevelInfo
}

// Logger is the handle threaded through the Context (see internal/handler
// Context) so request handling never reaches for a package-global.
type Logger struct {
	base    kitlog.Logger
	level   Level
	mu      sync.Mutex
	onceSet map[string]bool
}

// New constructs a Logger. logFile may be empty, in which case output goes
// to stderr; otherwise it rotates through lumberjack.
func New(level Level, logFile string) *Logger {
	var w = os.Stderr
	var base kitlog.Logger
	if logFile != "" {
		lj := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		base = kitlog.NewLogfmtLogger(lj)
	} else {
		base = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	}
	base = kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
	return &Logger{base: base, level: level, onceSet: make(map[string]bool)}
}

func (l *Logger) log(lvl level.Value, msg string, p Pairs) {
	kvs := make([]interface{}, 0, 2+len(p)*2)
	kvs = append(kvs, "msg", msg)
	for k, v := range p {
		kvs = append(kvs, k, v)
	}
	level.NewFilter(l.base, level.AllowAll()).Log(append([]interface{}{level.Key(), lvl}, kvs...)...)
}

// Debug logs at LevelDebug.
func (l *Logger) Debug(msg string, p Pairs) {
	if l.level >= LevelDebug {
		l.log(level.DebugValue(), msg, p)
	}
}

// Info logs at LevelInfo.
func (l *Logger) Info(msg string, p Pairs) {
	if l.level >= LevelInfo {
		l.log(level.InfoValue(), msg, p)
	}
}

// Warn logs at LevelWarn.
func (l *Logger) Warn(msg string, p Pairs) {
	if l.level >= LevelWarn {
		l.log(level.WarnValue(), msg, p)
	}
}

// Error logs unconditionally (always surfaced).
func (l *Logger) Error(msg string, p Pairs) {
	l.log(level.ErrorValue(), msg, p)
}

// WarnOnce logs a warning the first time it is invoked for a given key, and
// is silent on subsequent calls — used for noisy conditions (a stale entry
// found on every request for the same resource) that should alert once.
func (l *Logger) WarnOnce(key, msg string, p Pairs) {
	l.mu.Lock()
	if l.onceSet[key] {
		l.mu.Unlock()
		return
	}
	l.onceSet[key] = true
	l.mu.Unlock()
	l.Warn(msg, p)
}

// nopOnce counts Nop() constructions; retained for parity with call sites
// that previously inspected it, now unused beyond that bookkeeping.
var nopOnce int32

// Nop returns a Logger that writes nowhere, including Error (which every
// other Logger always surfaces regardless of configured level). Safe for
// concurrent use; used as a safe default when a Logger isn't supplied to a
// component under test.
func Nop() *Logger {
	atomic.AddInt32(&nopOnce, 1)
	base := kitlog.NewLogfmtLogger(ioutil.Discard)
	return &Logger{base: base, level: -1, onceSet: make(map[string]bool)}
}
