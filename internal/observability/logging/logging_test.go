package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Writer: &buf})

	logger.Info("hidden")
	logger.Warn("visible")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Fatalf("info record should be filtered at warn level: %s", output)
	}
	if !strings.Contains(output, "visible") {
		t.Fatalf("warn record missing: %s", output)
	}
}

func TestNewDefaultsToJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})

	logger.Info("structured", "key", "value")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output: %v (%s)", err, buf.String())
	}
	if record["key"] != "value" {
		t.Fatalf("attribute missing from record: %v", record)
	}
}

func TestWithComponentAnnotatesRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(New(Config{Writer: &buf}), "watcher")

	logger.Info("hello")

	if !strings.Contains(buf.String(), `"component":"watcher"`) {
		t.Fatalf("component annotation missing: %s", buf.String())
	}
}

func TestWithContextAddsRequestAndJobIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithJobID(ctx, "abc123-42")

	WithContext(ctx, logger).Info("annotated")

	output := buf.String()
	if !strings.Contains(output, `"request_id":"req-1"`) {
		t.Fatalf("request id missing: %s", output)
	}
	if !strings.Contains(output, `"job_id":"abc123-42"`) {
		t.Fatalf("job id missing: %s", output)
	}
}

func TestContextHelpersIgnoreEmptyValues(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "  ")
	if _, ok := RequestIDFromContext(ctx); ok {
		t.Fatal("blank request id should not be stored")
	}
	ctx = ContextWithJobID(ctx, "")
	if _, ok := JobIDFromContext(ctx); ok {
		t.Fatal("blank job id should not be stored")
	}
}

func TestLoggerFromContextRoundTrip(t *testing.T) {
	logger := New(Config{})
	ctx := ContextWithLogger(context.Background(), logger)
	if got := LoggerFromContext(ctx); got != logger {
		t.Fatal("logger should round-trip through the context")
	}
	if got := LoggerFromContext(context.Background()); got != nil {
		t.Fatal("empty context should not yield a logger")
	}
}
