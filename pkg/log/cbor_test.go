package log

import (
	"errors"
	"testing"
	"time"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
)

func TestErrorEventCarriesEntries(t *testing.T) {
	q := errqueue.NewQueue()
	q.Push(errors.New("handshake failure"))

	a := errqueue.NewAdapter(q, nil)
	entries := a.Drain("ssl_accept")

	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Layer:        LayerTLS,
		Category:     CategoryError,
		Error: &ErrorEventData{
			Layer:   LayerTLS,
			Op:      "ssl_accept",
			Message: "drained 1 entry",
			Entries: entries,
			Fatal:   true,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.Error == nil {
		t.Fatal("Error payload is nil")
	}
	if !decoded.Error.Fatal {
		t.Error("Fatal flag lost")
	}
	if len(decoded.Error.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(decoded.Error.Entries))
	}
	got := decoded.Error.Entries[0]
	if got.Code != entries[0].Code || got.Message != "handshake failure" {
		t.Errorf("entry = %+v, want code %08X message %q", got, entries[0].Code, "handshake failure")
	}
	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, event.Timestamp)
	}
}

func TestEventCBORUsesIntegerKeys(t *testing.T) {
	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerStream,
		Category:     CategoryIO,
		IO:           &IOEvent{Op: "read_until", Size: 12, Status: 1},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	var rawMap map[uint64]any
	if err := logDecMode.Unmarshal(data, &rawMap); err != nil {
		t.Fatalf("failed to decode as map: %v", err)
	}
	for _, key := range []uint64{1, 2, 3, 4, 5, 10} {
		if _, ok := rawMap[key]; !ok {
			t.Errorf("expected integer key %d not found in encoded data", key)
		}
	}
	// omitempty payloads are absent
	for _, key := range []uint64{11, 12} {
		if _, ok := rawMap[key]; ok {
			t.Errorf("unexpected key %d in encoded data", key)
		}
	}
}
