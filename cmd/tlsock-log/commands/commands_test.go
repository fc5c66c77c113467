package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
	"github.com/tlsock/tlsock-go/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cbor")

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

func sampleEvents() []log.Event {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	return []log.Event{
		{
			Timestamp:    ts,
			ConnectionID: "127.0.0.1:4433",
			Layer:        log.LayerSocket,
			Category:     log.CategoryState,
			Protocol:     "echo",
			StateChange:  &log.StateChangeEvent{Entity: log.StateEntityListener, OldState: "CONFIGURED", NewState: "BOUND"},
		},
		{
			Timestamp:    ts.Add(time.Millisecond),
			ConnectionID: "c0ffee00-aaaa-bbbb-cccc-000000000001",
			Layer:        log.LayerStream,
			Category:     log.CategoryIO,
			Direction:    log.DirectionIn,
			Protocol:     "echo",
			RemoteAddr:   "127.0.0.1:50000",
			IO:           &log.IOEvent{Op: "read_until", Size: 5, Status: 1, Data: []byte("ping\n")},
		},
		{
			Timestamp:    ts.Add(2 * time.Millisecond),
			ConnectionID: "c0ffee00-aaaa-bbbb-cccc-000000000001",
			Layer:        log.LayerStream,
			Category:     log.CategoryIO,
			Direction:    log.DirectionOut,
			Protocol:     "echo",
			IO:           &log.IOEvent{Op: "write", Size: 5},
		},
		{
			Timestamp:    ts.Add(3 * time.Millisecond),
			ConnectionID: "c0ffee00-aaaa-bbbb-cccc-000000000001",
			Layer:        log.LayerTLS,
			Category:     log.CategoryError,
			Protocol:     "echo",
			Error: &log.ErrorEventData{
				Layer:   log.LayerTLS,
				Op:      "ssl_read",
				Message: "1 error(s) drained",
				Entries: []errqueue.Entry{{Code: 0x1408F10B, Message: "record overflow"}},
				Fatal:   true,
			},
		},
		{
			Timestamp:    ts.Add(4 * time.Millisecond),
			ConnectionID: "c0ffee00-aaaa-bbbb-cccc-000000000001",
			Layer:        log.LayerSocket,
			Category:     log.CategoryState,
			Protocol:     "echo",
			StateChange:  &log.StateChangeEvent{Entity: log.StateEntityConnection, OldState: "ESTABLISHED", NewState: "CLOSED"},
		},
	}
}

func TestRunView(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"[conn:c0ffee00] IN  STREAM read_until",
		"Status: DELIMITER",
		"Data: 70696e670a",
		"CONFIGURED -> BOUND",
		"Op: ssl_read",
		"Fatal: yes",
		"record overflow",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunViewFiltered(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	cat, err := ParseCategoryFlag("IO")
	if err != nil {
		t.Fatal(err)
	}
	dir, err := ParseDirectionFlag("out")
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Category: &cat, Direction: &dir}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "STREAM write") {
		t.Errorf("write event missing:\n%s", out)
	}
	if strings.Contains(out, "read_until") || strings.Contains(out, "State") {
		t.Errorf("unfiltered events present:\n%s", out)
	}
}

func TestParseFlagsRejectUnknown(t *testing.T) {
	if _, err := ParseLayerFlag("wire"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
	if _, err := ParseCategoryFlag("message"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "fatal.cbor")

	n, err := RunFilter(path, FilterOptions{Output: outPath, FatalOnly: true})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}

	reader, err := log.NewReader(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	event, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if event.Error == nil || event.Error.Op != "ssl_read" {
		t.Errorf("unexpected event %+v", event)
	}
	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestRunFilterInvalidTime(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	_, err := RunFilter(path, FilterOptions{Output: filepath.Join(t.TempDir(), "x"), TimeStart: "yesterday"})
	if err == nil {
		t.Error("expected error for invalid time-start")
	}
}

func TestCollectStats(t *testing.T) {
	stats, err := Collect(createTestLogFile(t, sampleEvents()))
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if stats.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d, want 5", stats.TotalEvents)
	}
	if stats.Errors != 1 || stats.FatalErrors != 1 {
		t.Errorf("Errors = %d/%d, want 1/1", stats.Errors, stats.FatalErrors)
	}
	if len(stats.Connections) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(stats.Connections))
	}
	conn := stats.Connections["c0ffee00-aaaa-bbbb-cccc-000000000001"]
	if conn.BytesIn != 5 || conn.BytesOut != 5 {
		t.Errorf("bytes = %d/%d, want 5/5", conn.BytesIn, conn.BytesOut)
	}
	if conn.LastState != "CLOSED" || !conn.DrainedFatal {
		t.Errorf("conn = %+v", conn)
	}
	if conn.RemoteAddr != "127.0.0.1:50000" || conn.Protocol != "echo" {
		t.Errorf("conn = %+v", conn)
	}

	var buf bytes.Buffer
	printStats(&buf, stats)
	if !strings.Contains(buf.String(), "Errors: 1 (1 fatal)") {
		t.Errorf("stats output:\n%s", buf.String())
	}
}

func TestRunExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if first["Protocol"] != "echo" {
		t.Errorf("Protocol = %v", first["Protocol"])
	}
}

func TestRunExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected header + 5 rows, got %d", len(rows))
	}
	if rows[2][7] != "read_until" || rows[2][8] != "5" {
		t.Errorf("io row = %v", rows[2])
	}
	if rows[4][9] != "ssl_read fatal" {
		t.Errorf("error row = %v", rows[4])
	}

	if err := RunExport(path, "xml", ""); err == nil {
		t.Error("expected error for unknown format")
	}
}
