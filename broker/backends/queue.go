package backends

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotSupported is returned by optional operations a broker cannot perform.
	ErrNotSupported = errors.New("operation not supported by this broker")

	// ErrOperationFailed is wrapped by admin errors where the broker answered
	// a management request and reported failure.
	ErrOperationFailed = errors.New("management operation failed")
)

// Message represents a generic message for queue operations
type Message struct {
	Data       []byte
	Properties map[string]any

	// Message metadata
	MessageID     string
	CorrelationID string
	ReplyTo       string
	ContentType   string
	Priority      int
	Persistent    bool

	// Internal metadata (for display purposes)
	InternalMetadata map[string]any
}

// StringProperty returns the named application property if it is a string.
func (m *Message) StringProperty(name string) (string, bool) {
	if m == nil || m.Properties == nil {
		return "", false
	}
	s, ok := m.Properties[name].(string)
	return s, ok
}

// SendOptions contains options for sending messages to a queue
type SendOptions struct {
	Queue         string
	Message       []byte
	Properties    map[string]any
	MessageID     string
	CorrelationID string
	ReplyTo       string
	ContentType   string
	Priority      int
	Persistent    bool
	TTL           int64 // Time-to-live in milliseconds (0 = no expiry)
}

// ReceiveOptions contains options for receiving messages from a queue
type ReceiveOptions struct {
	Queue       string
	Timeout     time.Duration
	Wait        bool // wait until ctx is done instead of Timeout
	Acknowledge bool // true = destructive read (get), false = browse (peek)
	Selector    string
}

// QueueBackend defines the interface for queue-based messaging brokers.
//
// Receive returns a nil message and a nil error when the timeout elapses
// before a message arrives.
type QueueBackend interface {
	// Send sends a message to a queue
	Send(ctx context.Context, opts SendOptions) error

	// Receive receives a message from a queue
	Receive(ctx context.Context, opts ReceiveOptions) (*Message, error)

	// Close closes the connection to the broker
	Close() error
}

// SelectorCapable is implemented by backends that can report whether the
// broker evaluates ReceiveOptions.Selector itself.
type SelectorCapable interface {
	SupportsSelectors() bool
}

// SupportsSelectors reports whether b filters on the broker side.
func SupportsSelectors(b QueueBackend) bool {
	if sc, ok := b.(SelectorCapable); ok {
		return sc.SupportsSelectors()
	}
	return false
}

// QueueSpec describes a queue to provision
type QueueSpec struct {
	Name       string
	LookupPath string
	Durable    bool
}

// Admin defines the management operations needed to prepare and reset queues
type Admin interface {
	// CreateQueue creates a queue; an existing queue is not an error
	CreateQueue(ctx context.Context, spec QueueSpec) error

	// RemoveQueue deletes a queue and its messages
	RemoveQueue(ctx context.Context, name string) error

	// PurgeQueue removes all messages from a queue and returns how many were removed
	PurgeQueue(ctx context.Context, name string) (int64, error)

	// Close releases the management connection
	Close() error
}

// StatsReader is an optional interface for admins that expose queue statistics
type StatsReader interface {
	QueueStats(ctx context.Context, name string) (*QueueStats, error)
}

// QueueStats contains detailed statistics for a queue
type QueueStats struct {
	Name          string
	MessageCount  int64
	ConsumerCount int
	EnqueueCount  int64 // total messages enqueued (lifetime)
	DequeueCount  int64 // total messages dequeued (lifetime)
}
