package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rachelchenchi/focuser/config"
	"github.com/rachelchenchi/focuser/matching"
	"github.com/rachelchenchi/focuser/metrics"
)

// Upgrader for websocket connections
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler owns the websocket endpoint: it upgrades connections, reads event
// envelopes and routes them to the matching broker. No business logic lives
// here beyond routing.
type Handler struct {
	manager      *ClientManager
	broker       *matching.Broker
	jwtValidator *JWTValidator
	authConfig   *config.AuthConfig
	wsConfig     *config.WebSocketConfig
}

// NewHandler creates a new websocket handler.
func NewHandler(manager *ClientManager, broker *matching.Broker, jwtValidator *JWTValidator, authConfig *config.AuthConfig, wsConfig *config.WebSocketConfig) *Handler {
	return &Handler{
		manager:      manager,
		broker:       broker,
		jwtValidator: jwtValidator,
		authConfig:   authConfig,
		wsConfig:     wsConfig,
	}
}

// HandleWebSocket handles incoming websocket connections
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var claims *CustomClaims
	var err error

	// --- Handshake Authentication ---
	if h.authConfig.Enabled {
		if h.jwtValidator == nil {
			log.Printf("Auth Error: Auth is enabled but JWT validator is not initialized.")
			http.Error(w, "Internal server configuration error", http.StatusInternalServerError)
			return
		}

		tokenString := r.URL.Query().Get(h.authConfig.TokenQueryParam)
		if tokenString == "" {
			log.Printf("Auth Error: Missing token in request from %s", r.RemoteAddr)
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		claims, err = h.jwtValidator.ValidateToken(r.Context(), tokenString)
		if err != nil {
			log.Printf("Auth Error: Invalid token from %s. Reason: %v", r.RemoteAddr, err)
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}
		log.Printf("Client authenticated successfully. Subject: %s", claims.Subject)
	}
	// --- End Handshake Authentication ---

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// Use subject from JWT as clientID if available, otherwise generate a new one.
	var clientID string
	if claims != nil && claims.Subject != "" {
		clientID = claims.Subject
	} else {
		clientID = uuid.New().String()
	}

	session := NewClientSession(clientID, conn, h.wsConfig, claims)
	session.StartTimers()

	if err := h.manager.AddClient(r.Context(), session); err != nil {
		conn.Close()
		return
	}
	// Registered before the cascade defer below so shutdown's wait covers
	// the full disconnect cascade (defers run in reverse order).
	h.manager.IncreaseWaitGroup()
	defer h.manager.DecreaseWaitGroup()
	h.broker.Register(clientID)
	defer func() {
		// Disconnect cascade: dequeue and session-leave happen in the
		// broker before the connection map forgets the client.
		h.broker.Unregister(clientID)
		h.manager.RemoveClient(clientID)
	}()
	conn.SetPongHandler(session.GetPongHandler())

	// Send the connection id to the client for reference
	if err := session.SafeWriteJSON(outbound{Event: EventConnected, Data: ConnectedPayload{ClientID: clientID}}); err != nil {
		log.Printf("Failed to send connection id: %v", err)
		return // defer will handle cleanup
	}

	// Read messages from client
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				log.Printf("Read error from client %s: %v", clientID, err)
			}
			session.Close(websocket.CloseNormalClosure, "Client disconnected")
			break
		}
		metrics.MessagesReceived.Inc()
		session.UpdateActivity()
		h.manager.RefreshTTL(r.Context(), clientID)

		var envelope Envelope
		if err := json.Unmarshal(msg, &envelope); err != nil {
			log.Printf("Malformed envelope from client %s: %v", clientID, err)
			continue
		}
		h.dispatch(session, envelope)
	}
}

// dispatch routes one inbound envelope to the broker. Malformed payloads and
// unknown events are logged and ignored: the referenced session or partner
// may have already legitimately ended.
func (h *Handler) dispatch(session *ClientSession, envelope Envelope) {
	clientID := session.ID
	switch envelope.Event {
	case EventStartMatching:
		var p StartMatchingPayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			log.Printf("Malformed start_matching from client %s: %v", clientID, err)
			return
		}
		// The auth-resolved display name wins over the self-reported one.
		username := p.Username
		if name := session.Username(); name != "" {
			username = name
		}
		h.broker.StartMatching(clientID, p.FocusTime, username)

	case EventCancelMatching:
		h.broker.CancelMatching(clientID)

	case EventLeavingSession:
		var p PartnerPayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			log.Printf("Malformed leaving_session from client %s: %v", clientID, err)
			return
		}
		h.broker.LeaveSession(clientID, p.PartnerID)

	case EventSessionComplete:
		var p PartnerPayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			log.Printf("Malformed session_complete from client %s: %v", clientID, err)
			return
		}
		h.broker.CompleteSession(clientID, p.PartnerID)

	default:
		log.Printf("Unknown event %q from client %s, ignored", envelope.Event, clientID)
	}
}
