package log

import (
	"time"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the connection (UUID). Listener events carry
	// the listener's local address instead.
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates data flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Protocol is the host protocol name served on the listener.
	Protocol string `cbor:"6,keyasint,omitempty"`

	// LocalAddr is the listening address (IP:port).
	LocalAddr string `cbor:"7,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	IO          *IOEvent          `cbor:"10,keyasint,omitempty"` // Stream layer
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Listener/connection/session state
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"` // Drained TLS library errors
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates data read from the peer.
	DirectionIn Direction = 0
	// DirectionOut indicates data written to the peer.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerSocket is the listening/accepting socket layer.
	LayerSocket Layer = 0
	// LayerTLS is the TLS session layer.
	LayerTLS Layer = 1
	// LayerStream is the buffered stream engine.
	LayerStream Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerSocket:
		return "SOCKET"
	case LayerTLS:
		return "TLS"
	case LayerStream:
		return "STREAM"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryIO indicates a completed read or write.
	CategoryIO Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryIO:
		return "IO"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IOEvent captures one stream operation.
type IOEvent struct {
	// Op is the stream operation (read_until, write, ...).
	Op string `cbor:"1,keyasint"`

	// Size is the number of bytes returned or written.
	Size int `cbor:"2,keyasint"`

	// Status is the read-until status code (reads only).
	Status uint8 `cbor:"3,keyasint,omitempty"`

	// Data holds the leading bytes when data capture is enabled.
	Data []byte `cbor:"4,keyasint,omitempty"`

	// Truncated is set when Data holds fewer bytes than Size.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// StateEntity identifies what changed state.
type StateEntity uint8

const (
	// StateEntityListener is a listening socket.
	StateEntityListener StateEntity = 0
	// StateEntityConnection is an accepted connection.
	StateEntityConnection StateEntity = 1
	// StateEntitySession is the TLS session of a connection.
	StateEntitySession StateEntity = 2
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityListener:
		return "LISTENER"
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent records a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData records one drain of the TLS library error queue.
type ErrorEventData struct {
	// Layer where the drain happened.
	Layer Layer `cbor:"1,keyasint"`

	// Op is the operation label of the drain.
	Op string `cbor:"2,keyasint"`

	// Message is a human-readable summary.
	Message string `cbor:"3,keyasint"`

	// Entries are the drained queue entries.
	Entries []errqueue.Entry `cbor:"4,keyasint,omitempty"`

	// Fatal is set when the drain aborted the operation.
	Fatal bool `cbor:"5,keyasint,omitempty"`
}
