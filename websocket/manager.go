package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rachelchenchi/focuser/metrics"
	"github.com/rachelchenchi/focuser/presence"
)

// ClientManager manages connected websocket clients for a single broker
// instance. It coordinates between the in-memory connection map and the
// presence store.
type ClientManager struct {
	clients  sync.Map // In-memory map of active connections for this instance
	wg       sync.WaitGroup
	presence presence.Store
	serverID string
}

// NewClientManager creates a new client manager.
func NewClientManager(store presence.Store, serverID string) *ClientManager {
	return &ClientManager{
		clients:  sync.Map{},
		presence: store,
		serverID: serverID,
	}
}

// AddClient adds a client to the manager, storing the connection in-memory
// and tracking it in the presence store.
func (m *ClientManager) AddClient(ctx context.Context, clientSession *ClientSession) error {
	record := &presence.Record{
		ConnectionID: clientSession.ID,
		ServerID:     m.serverID,
		Username:     clientSession.Username(),
		ConnectedAt:  time.Now(),
	}
	if err := m.presence.Track(ctx, record); err != nil {
		log.Printf("Failed to track presence for client %s: %v", clientSession.ID, err)
		return err
	}

	m.clients.Store(clientSession.ID, clientSession)
	metrics.ActiveConnections.Inc()
	metrics.TotalConnections.Inc()
	log.Printf("Client %s connected to broker %s", clientSession.ID, m.serverID)
	return nil
}

// RemoveClient removes a client from the in-memory map and the presence
// store.
func (m *ClientManager) RemoveClient(clientID string) {
	m.clients.Delete(clientID)

	// Use a background context as the original request context may be cancelled.
	if err := m.presence.Forget(context.Background(), clientID); err != nil {
		log.Printf("Failed to forget presence for client %s: %v", clientID, err)
	}
	metrics.ActiveConnections.Dec()
	log.Printf("Client %s disconnected", clientID)
}

// GetClient retrieves a live client connection by ID from the in-memory map.
func (m *ClientManager) GetClient(clientID string) (*ClientSession, bool) {
	if client, ok := m.clients.Load(clientID); ok {
		return client.(*ClientSession), true
	}
	return nil, false
}

// RefreshTTL extends the client's presence record lifetime.
func (m *ClientManager) RefreshTTL(ctx context.Context, clientID string) {
	if err := m.presence.RefreshTTL(ctx, clientID); err != nil {
		// Log but don't disconnect the client; it might be a transient
		// store issue.
		log.Printf("Failed to refresh presence TTL for client %s: %v", clientID, err)
	}
}

// IncreaseWaitGroup increases the wait group counter
func (m *ClientManager) IncreaseWaitGroup() {
	m.wg.Add(1)
}

// DecreaseWaitGroup decreases the wait group counter
func (m *ClientManager) DecreaseWaitGroup() {
	m.wg.Done()
}

// WaitForCompletion waits for all operations to complete
func (m *ClientManager) WaitForCompletion() {
	m.wg.Wait()
}

// CloseAllConnections sends close messages to all clients and removes them
func (m *ClientManager) CloseAllConnections(reason string) {
	m.clients.Range(func(key, value interface{}) bool {
		clientID := key.(string)
		session := value.(*ClientSession)

		log.Printf("Closing connection for client %s: %s", clientID, reason)
		session.Close(websocket.CloseGoingAway, reason)
		m.RemoveClient(clientID)

		return true
	})
}
