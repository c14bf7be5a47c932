package websocket

import (
	"log"

	"github.com/gorilla/websocket"

	"github.com/rachelchenchi/focuser/metrics"
)

// The ClientManager implements matching.Notifier: broker-originated events
// are written to the targeted client's socket. A missing client is not an
// error; the connection may have dropped between the broker's liveness
// check and delivery.

func (m *ClientManager) MatchSuccess(connectionID, partnerID, partnerUsername string) {
	m.deliver(connectionID, EventMatchSuccess, MatchSuccessPayload{
		PartnerID:       partnerID,
		PartnerUsername: partnerUsername,
	})
}

func (m *ClientManager) MatchTimeout(connectionID string) {
	m.deliver(connectionID, EventMatchTimeout, nil)
}

func (m *ClientManager) PartnerLeft(connectionID string) {
	m.deliver(connectionID, EventPartnerLeft, nil)
}

func (m *ClientManager) PartnerCompleted(connectionID string) {
	m.deliver(connectionID, EventPartnerCompleted, nil)
}

func (m *ClientManager) deliver(connectionID, event string, data interface{}) {
	session, ok := m.GetClient(connectionID)
	if !ok {
		log.Printf("Dropping %s for client %s: connection gone", event, connectionID)
		return
	}
	if err := session.SafeWriteJSON(outbound{Event: event, Data: data}); err != nil {
		log.Printf("Failed to send %s to client %s: %v", event, connectionID, err)
		session.Close(websocket.CloseInternalServerErr, "Failed to send message")
		return
	}
	metrics.MessagesSent.Inc()
}
