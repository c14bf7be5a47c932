package presence

import (
	"context"
	"sync"
	"time"
)

// Record holds the presence data for one live connection. When the broker is
// ever scaled past a single instance, this is the shared state other
// instances would consult; the matching core itself never reads it.
type Record struct {
	ConnectionID string    `json:"connection_id"`
	ServerID     string    `json:"server_id"` // broker instance handling the connection
	Username     string    `json:"username,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// Store defines the interface for presence tracking.
type Store interface {
	// Track records a live connection.
	Track(ctx context.Context, record *Record) error
	// Get retrieves a record by connection ID. Missing records yield
	// (nil, nil).
	Get(ctx context.Context, connectionID string) (*Record, error)
	// Forget removes a record.
	Forget(ctx context.Context, connectionID string) error
	// RefreshTTL extends the record's lifetime in the store.
	RefreshTTL(ctx context.Context, connectionID string) error
}

// MemoryStore keeps presence records in-process. Used when no Redis is
// configured; TTLs are not enforced since records die with the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Track(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ConnectionID] = record
	return nil
}

func (s *MemoryStore) Get(_ context.Context, connectionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[connectionID], nil
}

func (s *MemoryStore) Forget(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, connectionID)
	return nil
}

func (s *MemoryStore) RefreshTTL(context.Context, string) error {
	return nil
}
