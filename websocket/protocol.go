package websocket

import "encoding/json"

// Event names on the wire. Inbound events come from the client, outbound
// events from the broker. Payloads ride in a JSON envelope.
const (
	// Outbound
	EventConnected        = "connected"
	EventMatchSuccess     = "match_success"
	EventMatchTimeout     = "match_timeout"
	EventPartnerLeft      = "partner_left"
	EventPartnerCompleted = "partner_completed"

	// Inbound
	EventStartMatching   = "start_matching"
	EventCancelMatching  = "cancel_matching"
	EventLeavingSession  = "leaving_session"
	EventSessionComplete = "session_complete"
)

// Envelope frames every message exchanged over the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound is the write-side counterpart of Envelope; Data is marshaled
// in place.
type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ConnectedPayload is sent once right after the upgrade so the client knows
// its opaque connection id.
type ConnectedPayload struct {
	ClientID string `json:"client_id"`
}

// StartMatchingPayload asks for a buddy at an exact focus duration in
// minutes. Fractional values are allowed for debugging and compared exactly.
type StartMatchingPayload struct {
	FocusTime float64 `json:"focus_time"`
	Username  string  `json:"username"`
}

// PartnerPayload names the session partner in leaving_session and
// session_complete events.
type PartnerPayload struct {
	PartnerID string `json:"partner_id"`
}

// MatchSuccessPayload carries the other party's identity, never the
// recipient's own.
type MatchSuccessPayload struct {
	PartnerID       string `json:"partner_id"`
	PartnerUsername string `json:"partner_username"`
}
