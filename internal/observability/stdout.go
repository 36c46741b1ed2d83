package observability

import (
	"io"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Level orders log severities for the stdout logger.
type Level int

const (
	// LevelDebug emits everything.
	LevelDebug Level = iota
	// LevelInfo suppresses debug output.
	LevelInfo
	// LevelError emits errors only.
	LevelError
)

// StdoutLogger writes one JSON object per log line.
type StdoutLogger struct {
	mu      sync.Mutex
	out     io.Writer
	min     Level
	service string
	clock   func() time.Time
}

// NewStdoutLogger constructs a line-oriented JSON logger for the named service.
func NewStdoutLogger(out io.Writer, service string, min Level) *StdoutLogger {
	return &StdoutLogger{
		mu:      sync.Mutex{},
		out:     out,
		min:     min,
		service: service,
		clock:   time.Now,
	}
}

// WithClock overrides the timestamp source, primarily for testing.
func (l *StdoutLogger) WithClock(clock func() time.Time) *StdoutLogger {
	if clock != nil {
		l.clock = clock
	}
	return l
}

// Debug logs at debug level.
func (l *StdoutLogger) Debug(msg string, fields ...Field) { l.emit(LevelDebug, "debug", msg, fields) }

// Info logs at info level.
func (l *StdoutLogger) Info(msg string, fields ...Field) { l.emit(LevelInfo, "info", msg, fields) }

// Error logs at error level.
func (l *StdoutLogger) Error(msg string, fields ...Field) { l.emit(LevelError, "error", msg, fields) }

func (l *StdoutLogger) emit(level Level, name, msg string, fields []Field) {
	if level < l.min {
		return
	}
	entry := make(map[string]any, len(fields)+4)
	entry["ts"] = l.clock().UTC().Format(time.RFC3339Nano)
	entry["level"] = name
	entry["service"] = l.service
	entry["msg"] = msg
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		entry[f.Key] = f.Value
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(line, '\n'))
}

var _ Logger = (*StdoutLogger)(nil)
