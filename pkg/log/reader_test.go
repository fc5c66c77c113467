package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, path string, filter Filter) []Event {
	t.Helper()
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	var out []Event
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, e)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if event, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got err=%v, event=%+v", err, event)
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Now()
	in, out := DirectionIn, DirectionOut
	tlsLayer := LayerTLS
	state := CategoryState

	events := []Event{
		{Timestamp: base, ConnectionID: "conn-A", Direction: DirectionIn, Layer: LayerStream, Category: CategoryIO, Protocol: "echo"},
		{Timestamp: base.Add(time.Second), ConnectionID: "conn-B", Direction: DirectionOut, Layer: LayerStream, Category: CategoryIO, Protocol: "echo"},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "conn-A", Layer: LayerTLS, Category: CategoryState, Protocol: "smtp",
			StateChange: &StateChangeEvent{Entity: StateEntitySession, OldState: "accepted", NewState: "established"}},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "conn-A", Layer: LayerTLS, Category: CategoryError, Protocol: "echo",
			Error: &ErrorEventData{Layer: LayerTLS, Op: "ssl_accept", Fatal: true}},
		{Timestamp: base.Add(4 * time.Second), ConnectionID: "conn-B", Layer: LayerStream, Category: CategoryError, Protocol: "echo",
			Error: &ErrorEventData{Layer: LayerStream, Op: "write"}},
	}
	path := createTestLogFile(t, events)

	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{"none", Filter{}, []int{0, 1, 2, 3, 4}},
		{"connection", Filter{ConnectionID: "conn-A"}, []int{0, 2, 3}},
		{"direction in", Filter{Direction: &in, Category: ptrCategory(CategoryIO)}, []int{0}},
		{"direction out", Filter{Direction: &out}, []int{1}},
		{"layer", Filter{Layer: &tlsLayer}, []int{2, 3}},
		{"category", Filter{Category: &state}, []int{2}},
		{"time range", Filter{TimeStart: &start, TimeEnd: &end}, []int{1, 2}},
		{"protocol", Filter{Protocol: "smtp"}, []int{2}},
		{"fatal only", Filter{FatalOnly: true}, []int{3}},
		{"combined", Filter{ConnectionID: "conn-B", Layer: ptrLayer(LayerStream), TimeStart: &end}, []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAll(t, path, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i, idx := range tt.want {
				if !got[i].Timestamp.Equal(events[idx].Timestamp) {
					t.Errorf("event %d: got timestamp %v, want event %d", i, got[i].Timestamp, idx)
				}
			}
		})
	}
}

func ptrLayer(l Layer) *Layer          { return &l }
func ptrCategory(c Category) *Category { return &c }
