package commands

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/corelink-proto/corelink-go/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.clog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func TestExportToJSONL(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 15, 32, 123456000, time.UTC)
	events := []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345",
			Category:     log.CategoryState,
			Transport:    "websocket",
			StateChange: &log.StateChangeEvent{
				Component: "connection",
				From:      "connecting",
				To:        "connected",
			},
		},
		{
			Timestamp:    ts.Add(time.Second),
			ConnectionID: "abc12345",
			Category:     log.CategoryQueue,
			Queue: &log.QueueEvent{
				OperationID: "op-1",
				Status:      "queued",
			},
		},
	}

	path := createTestLogFile(t, events)

	outPath := filepath.Join(t.TempDir(), "out.jsonl")
	if err := RunExport(path, "jsonl", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first line is not valid JSON: %v", err)
	}
	if first["category"] != "STATE" {
		t.Errorf("category = %v, want STATE", first["category"])
	}
	if first["transport"] != "websocket" {
		t.Errorf("transport = %v, want websocket", first["transport"])
	}
	if first["timestamp"] != "2026-03-15T10:15:32.123456Z" {
		t.Errorf("timestamp = %v", first["timestamp"])
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("second line is not valid JSON: %v", err)
	}
	if second["category"] != "QUEUE" {
		t.Errorf("category = %v, want QUEUE", second["category"])
	}
	if _, ok := second["queue"]; !ok {
		t.Errorf("queue detail missing: %v", second)
	}
}

func TestExportToCSV(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "abc12345",
			Category:     log.CategoryRetry,
			Transport:    "sse",
			Retry: &log.RetryEvent{
				Attempt: 2,
				Delay:   time.Second,
			},
		},
		{
			Timestamp:    ts.Add(time.Second),
			ConnectionID: "abc12345",
			Category:     log.CategoryError,
			Endpoint:     "devices/1/name",
			Error: &log.ErrorEvent{
				Op:      "send",
				Message: "connection reset",
			},
		},
	}

	path := createTestLogFile(t, events)

	outPath := filepath.Join(t.TempDir(), "out.csv")
	if err := RunExport(path, "csv", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}

	// Header + 2 data rows
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][2] != "RETRY" {
		t.Errorf("first row category = %q, want RETRY", rows[1][2])
	}
	if !strings.Contains(rows[1][5], "attempt 2") {
		t.Errorf("retry detail = %q", rows[1][5])
	}
	if rows[2][4] != "devices/1/name" {
		t.Errorf("second row endpoint = %q", rows[2][4])
	}
	if !strings.Contains(rows[2][5], "connection reset") {
		t.Errorf("error detail = %q", rows[2][5])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, []log.Event{
		{Timestamp: time.Now(), Category: log.CategoryState},
	})

	err := RunExport(path, "xml", "")
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
	if !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("unexpected error: %v", err)
	}
}
