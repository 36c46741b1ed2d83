package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

func TestStdoutLoggerEmitsStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdoutLogger(&buf, "ingest", LevelDebug).WithClock(fixedClock)

	logger.Info("event captured",
		String("source", "github"),
		String("event_type", "push"),
		Int("deliveries", 2),
	)

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, line)
	}
	if entry["service"] != "ingest" || entry["msg"] != "event captured" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["source"] != "github" {
		t.Fatalf("expected source field, got %v", entry["source"])
	}
	if entry["deliveries"] != float64(2) {
		t.Fatalf("expected deliveries=2, got %v", entry["deliveries"])
	}
}

func TestStdoutLoggerRespectsMinimumLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdoutLogger(&buf, "worker", LevelError)

	logger.Debug("noisy")
	logger.Info("still noisy")
	if buf.Len() != 0 {
		t.Fatalf("expected suppressed output, got %q", buf.String())
	}

	logger.Error("broker closed")
	if !strings.Contains(buf.String(), "broker closed") {
		t.Fatalf("expected error output, got %q", buf.String())
	}
}

func TestSetLoggerNilRestoresNoop(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewStdoutLogger(&buf, "test", LevelDebug))
	Log().Info("visible")
	SetLogger(nil)
	Log().Info("invisible")

	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected first line to be logged")
	}
	if strings.Contains(buf.String(), "invisible") {
		t.Fatalf("noop logger should swallow output")
	}
}

func TestAggregateErrorsSkipsNils(t *testing.T) {
	if err := AggregateErrors("shutdown", []error{nil, nil}); err != nil {
		t.Fatalf("expected nil aggregate, got %v", err)
	}
}

func TestAggregateErrorsJoinsFailuresAndLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewStdoutLogger(&buf, "test", LevelDebug))
	defer SetLogger(nil)

	err := AggregateErrors("shutdown", []error{
		nil,
		errors.New("broker close: connection reset"),
		nil,
		errors.New("telemetry: exporter timeout"),
	})
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	for _, fragment := range []string{"shutdown", "broker close: connection reset", "telemetry: exporter timeout"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in aggregate error: %v", fragment, err)
		}
	}

	logged := buf.String()
	if !strings.Contains(logged, "failed_steps") || !strings.Contains(logged, "shutdown finished with errors") {
		t.Fatalf("expected one aggregated log entry, got %q", logged)
	}
	if got := strings.Count(logged, "\n"); got != 1 {
		t.Fatalf("expected exactly one log line, got %d", got)
	}
}
