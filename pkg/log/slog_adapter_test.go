package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func logOne(t *testing.T, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	NewSlogAdapter(slog.New(handler)).Log(event)

	if buf.Len() == 0 {
		t.Fatal("no output produced")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	return entry
}

func TestSlogAdapterLogsIOEvent(t *testing.T) {
	entry := logOne(t, Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerStream,
		Category:     CategoryIO,
		IO:           &IOEvent{Op: "read_until", Size: 256, Status: 1},
	})

	if entry["conn_id"] != "conn-123" {
		t.Errorf("conn_id: got %v, want %q", entry["conn_id"], "conn-123")
	}
	if entry["layer"] != "STREAM" {
		t.Errorf("layer: got %v, want %q", entry["layer"], "STREAM")
	}
	if entry["size"] != float64(256) {
		t.Errorf("size: got %v, want 256", entry["size"])
	}
	if entry["status"] != float64(1) {
		t.Errorf("status: got %v, want 1", entry["status"])
	}
	if entry["level"] != "DEBUG" {
		t.Errorf("level: got %v, want DEBUG", entry["level"])
	}
}

func TestSlogAdapterLogsStateChange(t *testing.T) {
	entry := logOne(t, Event{
		Timestamp: time.Now(),
		Layer:     LayerSocket,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityListener,
			OldState: "unbound",
			NewState: "bound",
			Reason:   "bind",
		},
	})

	if entry["entity"] != "LISTENER" {
		t.Errorf("entity: got %v, want LISTENER", entry["entity"])
	}
	if entry["new_state"] != "bound" {
		t.Errorf("new_state: got %v, want bound", entry["new_state"])
	}
	if entry["reason"] != "bind" {
		t.Errorf("reason: got %v, want bind", entry["reason"])
	}
}

func TestSlogAdapterFatalErrorLevel(t *testing.T) {
	entry := logOne(t, Event{
		Timestamp: time.Now(),
		Layer:     LayerTLS,
		Category:  CategoryError,
		Error:     &ErrorEventData{Layer: LayerTLS, Op: "ssl_accept", Message: "bad", Fatal: true},
	})

	if entry["level"] != "ERROR" {
		t.Errorf("level: got %v, want ERROR", entry["level"])
	}
	if entry["error_op"] != "ssl_accept" {
		t.Errorf("error_op: got %v, want ssl_accept", entry["error_op"])
	}
}
