package integration

import (
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wsURL       = "ws://localhost:5000/ws"
	testTimeout = 10 * time.Second
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func dialBroker(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Failed to connect to broker")
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	var e envelope
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

// TestE2EMatchingFlow runs the full buddy flow against a live broker:
// connect, match, complete, disconnect.
func TestE2EMatchingFlow(t *testing.T) {
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("Skipping integration test: set INTEGRATION env var to run")
	}

	connA := dialBroker(t)
	connB := dialBroker(t)

	// 1. Contract: every connection is told its id first.
	var idA, idB string
	e := readEvent(t, connA)
	require.Equal(t, "connected", e.Event)
	var connected struct {
		ClientID string `json:"client_id"`
	}
	require.NoError(t, json.Unmarshal(e.Data, &connected))
	idA = connected.ClientID
	log.Printf("Client A connected as %s", idA)

	e = readEvent(t, connB)
	require.Equal(t, "connected", e.Event)
	require.NoError(t, json.Unmarshal(e.Data, &connected))
	idB = connected.ClientID
	log.Printf("Client B connected as %s", idB)

	// 2. Both request a 25-minute buddy; a fractional debug duration would
	// work the same way.
	require.NoError(t, connA.WriteJSON(map[string]interface{}{
		"event": "start_matching",
		"data":  map[string]interface{}{"focus_time": 25, "username": "alice"},
	}))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, connB.WriteJSON(map[string]interface{}{
		"event": "start_matching",
		"data":  map[string]interface{}{"focus_time": 25, "username": "bob"},
	}))

	// 3. Both sides hear about the other, never themselves.
	var match struct {
		PartnerID       string `json:"partner_id"`
		PartnerUsername string `json:"partner_username"`
	}
	e = readEvent(t, connA)
	require.Equal(t, "match_success", e.Event)
	require.NoError(t, json.Unmarshal(e.Data, &match))
	assert.Equal(t, idB, match.PartnerID)
	assert.Equal(t, "bob", match.PartnerUsername)

	e = readEvent(t, connB)
	require.Equal(t, "match_success", e.Event)
	require.NoError(t, json.Unmarshal(e.Data, &match))
	assert.Equal(t, idA, match.PartnerID)
	assert.Equal(t, "alice", match.PartnerUsername)

	// 4. A completes, then drops. B hears partner_completed and nothing
	// else.
	require.NoError(t, connA.WriteJSON(map[string]interface{}{
		"event": "session_complete",
		"data":  map[string]interface{}{"partner_id": idB},
	}))
	e = readEvent(t, connB)
	require.Equal(t, "partner_completed", e.Event)

	connA.Close()

	require.NoError(t, connB.SetReadDeadline(time.Now().Add(time.Second)))
	var extra envelope
	err := connB.ReadJSON(&extra)
	assert.Error(t, err, "expected silence after partner completion, got %q", extra.Event)
}
