package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lofi/internal/config"
	"lofi/internal/logging"
	"lofi/internal/services"
)

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller", logging.String("key", "value"))

	out := buf.String()
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", out)
	}
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "message without caller") {
		t.Fatalf("unexpected console output %q", out)
	}
	if !strings.Contains(out, "- key: value") {
		t.Fatalf("expected field line, got %q", out)
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestConsoleHeaderCarriesComponentRunAndStage(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRunID(context.Background(), "0123456789abcdef")
	ctx = services.WithStage(ctx, "render")
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "orchestrator"))
	logger.Info("stage completed")

	header := strings.SplitN(buf.String(), "\n", 2)[0]
	for _, fragment := range []string{"[orchestrator]", "run 01234567 (render)", "stage completed"} {
		if !strings.Contains(header, fragment) {
			t.Fatalf("expected %q in header %q", fragment, header)
		}
	}
}

func TestJSONLoggerUsesCanonicalKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("admission denied", logging.String(logging.FieldCallerKey, "10.0.0.1"), logging.Error(errors.New("boom")))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, buf.String())
	}
	if record["level"] != "warn" || record["msg"] != "admission denied" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	if record["caller_key"] != "10.0.0.1" || record["error"] != "boom" {
		t.Fatalf("unexpected attributes %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesRotatedFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "info"

	logger, err := logging.NewFromConfig(&cfg, true)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("written to file", logging.String("run_id", "abc"))

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"written to file"`) {
		t.Fatalf("expected JSON record in file, got %q", data)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "store unavailable", "rate_limit_fail_open")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := record[key]; !ok {
			t.Fatalf("expected %s in %v", key, record)
		}
	}
	if record[logging.FieldEventType] != "rate_limit_fail_open" {
		t.Fatalf("unexpected event type %v", record[logging.FieldEventType])
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 100) {
		t.Fatal("expected nop logger to be disabled")
	}
	logging.WithContext(context.Background(), nil).Info("ignored")
}

func TestRunAndStageAttrsFeedConsoleHeader(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("tracks selected", logging.RunID("abcdef0123"), logging.Stage("audio"), logging.Int("count", 90))

	lines := strings.Split(buf.String(), "\n")
	if !strings.Contains(lines[0], "run abcdef01 (audio)") {
		t.Fatalf("expected run/stage subject in header %q", lines[0])
	}
	if strings.Contains(buf.String(), "- run_id:") {
		t.Fatalf("run_id should not repeat as a field: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "- count: 90") {
		t.Fatalf("expected count field, got %q", buf.String())
	}
}

func TestConsoleValuesStayOnOneLine(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	stderr := errors.New("exit status 1\n[mp3 @ 0x1] invalid frame\n\nconcat: no streams\n")
	logger.Warn("ffmpeg failed",
		logging.Error(stderr),
		logging.Duration("stage_duration", 83456789*time.Microsecond),
		logging.String("args", strings.Repeat("-i clip.mp4 ", 40)+"/work/video.mp4"),
	)

	out := buf.String()
	if !strings.Contains(out, "- error: exit status 1 | [mp3 @ 0x1] invalid frame | concat: no streams\n") {
		t.Fatalf("expected stderr folded onto one line, got %q", out)
	}
	if !strings.Contains(out, "- stage_duration: 1m23.457s\n") {
		t.Fatalf("expected duration rounded to milliseconds, got %q", out)
	}
	var argsLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "    - args: ") {
			argsLine = line
		}
	}
	if !strings.Contains(argsLine, "chars)...") || !strings.HasSuffix(argsLine, "/work/video.mp4") {
		t.Fatalf("expected long args elided in the middle keeping the output path, got %q", argsLine)
	}
}

func TestJSONDebugRecordsCaller(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("probe")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	caller, _ := record["caller"].(string)
	if !strings.HasPrefix(caller, "logger_test.go:") {
		t.Fatalf("expected caller key, got %v", record)
	}
}
