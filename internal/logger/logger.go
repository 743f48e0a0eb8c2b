// Package logger provides the process-wide leveled logger.
//
// The package keeps a printf-style API (Debug, Info, Warn, Error) so call
// sites stay terse, and renders through zerolog so the same lines can be
// emitted as human-readable text or as JSON for log shippers.
//
// Request-scoped fields (request id, resolved identity) are attached with
// With:
//
//	logger.With(logger.Fields{"identity": name}).Info("deleted %d entries", n)
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Fields are structured key/value pairs attached to a log line.
type Fields map[string]any

// Options configures the output of the logger.
type Options struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string

	// Format is "text" or "json".
	Format string

	// Output is "stdout", "stderr" or a file path (opened for append).
	Output string
}

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	base         = newBase(os.Stdout, "text")
	output       io.Closer
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a level name into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return
	}

	mu.Lock()
	currentLevel = lvl
	mu.Unlock()
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// Configure replaces the logger output according to opts.
//
// A previously opened log file is closed once the new output is in place.
func Configure(opts Options) error {
	lvl := LevelInfo
	if opts.Level != "" {
		parsed, err := ParseLevel(opts.Level)
		if err != nil {
			return err
		}
		lvl = parsed
	}

	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	var (
		w      io.Writer
		closer io.Closer
	)
	switch opts.Output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closer = f
	}

	mu.Lock()
	previous := output
	currentLevel = lvl
	base = newBase(w, format)
	output = closer
	mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

func newBase(w io.Writer, format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	console := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: "2006-01-02 15:04:05",
		FormatLevel: func(i any) string {
			return fmt.Sprintf("[%s]", strings.ToUpper(fmt.Sprint(i)))
		},
	}
	return zerolog.New(console).With().Timestamp().Logger()
}

func log(level Level, fields Fields, format string, v ...any) {
	mu.RLock()
	if level < currentLevel {
		mu.RUnlock()
		return
	}
	l := base
	mu.RUnlock()

	event := l.WithLevel(level.zerolog())
	if len(fields) > 0 {
		event = event.Fields(map[string]any(fields))
	}
	event.Msg(fmt.Sprintf(format, v...))
}

func Debug(format string, v ...any) {
	log(LevelDebug, nil, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, nil, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, nil, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, nil, format, v...)
}

// Entry is a logger bound to a set of fields.
type Entry struct {
	fields Fields
}

// With returns an Entry that adds fields to every line it logs.
func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// With returns a new Entry carrying both the existing and the given fields.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

func (e *Entry) Debug(format string, v ...any) {
	log(LevelDebug, e.fields, format, v...)
}

func (e *Entry) Info(format string, v ...any) {
	log(LevelInfo, e.fields, format, v...)
}

func (e *Entry) Warn(format string, v ...any) {
	log(LevelWarn, e.fields, format, v...)
}

func (e *Entry) Error(format string, v ...any) {
	log(LevelError, e.fields, format, v...)
}

// Since formats the elapsed time since start for access log lines.
func Since(start time.Time) string {
	return time.Since(start).Round(time.Microsecond).String()
}
