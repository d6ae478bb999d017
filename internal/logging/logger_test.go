package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"rorsync/internal/config"
	"rorsync/internal/logging"
)

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	var console bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Console: &console})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "merge").Info("merge request sent",
		logging.String(logging.FieldRORID, "https://ror.org/01"),
		logging.Int(logging.FieldStatusCode, 200),
		logging.String("note", "two words"),
	)

	line := console.String()
	for _, want := range []string{"INFO merge: merge request sent", "ror_id=https://ror.org/01", "status_code=200", `note="two words"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in console output, got %q", want, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleLoggerOmitsRunID(t *testing.T) {
	var console bytes.Buffer
	logger, err := logging.New(logging.Options{Console: &console})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := logging.WithRunID(context.Background(), "run-42")
	logging.WithContext(ctx, logger).Info("started")

	if strings.Contains(console.String(), "run-42") {
		t.Fatalf("expected run id to be omitted from console, got %q", console.String())
	}
}

func TestAuditWriterReceivesJSONWithRunID(t *testing.T) {
	var console, audit bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Console: &console, Audit: &audit})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := logging.WithRunID(context.Background(), "run-7")
	logger = logging.WithContext(ctx, logger)

	logger.Info("organization processed", logging.Outcome(logging.OutcomeSucceeded))

	if console.Len() != 0 {
		t.Fatalf("expected console to drop info at warn level, got %q", console.String())
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(audit.Bytes()), &record); err != nil {
		t.Fatalf("audit line is not JSON: %v (%q)", err, audit.String())
	}
	if record["run_id"] != "run-7" || record["outcome"] != "succeeded" || record["msg"] != "organization processed" {
		t.Fatalf("unexpected audit record: %#v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected timestamp in audit record: %#v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigAppendsToLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	for i := 0; i < 2; i++ {
		var console bytes.Buffer
		logger, closer, err := logging.NewFromConfig(&cfg, &console)
		if err != nil {
			t.Fatalf("NewFromConfig returned error: %v", err)
		}
		logging.WarnWithContext(logger, "page skipped", "registry_page_failed")
		if err := closer.Close(); err != nil {
			t.Fatalf("close audit log: %v", err)
		}
	}

	content, err := os.ReadFile(cfg.LogFile())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 appended lines, got %d: %q", len(lines), content)
	}
	for _, line := range lines {
		if !strings.Contains(line, `"event_type":"registry_page_failed"`) || !strings.Contains(line, `"error_hint"`) {
			t.Fatalf("expected enforced warning fields, got %q", line)
		}
	}
}
