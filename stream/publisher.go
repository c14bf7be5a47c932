package stream

import (
	"context"
	"encoding/json"
	"time"
)

// Event kinds published on the lifecycle stream. External collaborators
// (reward ledger, stats) consume these; the broker never reads them back.
const (
	EventMatchMade        = "match_made"
	EventMatchTimeout     = "match_timeout"
	EventSessionCompleted = "session_completed"
	EventSessionEnded     = "session_ended"
)

// Event is one match lifecycle record.
type Event struct {
	Kind      string    `json:"kind"`
	ServerID  string    `json:"server_id"`
	SessionID string    `json:"session_id,omitempty"`
	Members   []string  `json:"members,omitempty"`
	FocusTime float64   `json:"focus_time,omitempty"`
	At        time.Time `json:"at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis publishing.
func (e Event) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *Event) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, e)
}

// Publisher is the outbound lifecycle stream. Implementations must be safe
// for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Type() string
	Close() error
}

// NoopPublisher discards all events. Used when no stream backend is
// configured and in tests.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (*NoopPublisher) Publish(context.Context, Event) error { return nil }
func (*NoopPublisher) Type() string                         { return "none" }
func (*NoopPublisher) Close() error                         { return nil }
