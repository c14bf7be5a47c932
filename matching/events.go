package matching

// Notifier delivers broker-originated events to a single connection.
// The websocket layer implements this on top of its client manager; tests
// substitute a recording fake.
type Notifier interface {
	// MatchSuccess tells a connection who its buddy is. Each matched party
	// receives the other side's identity, never its own.
	MatchSuccess(connectionID, partnerID, partnerUsername string)
	// MatchTimeout tells a connection its queue entry expired unmatched.
	MatchTimeout(connectionID string)
	// PartnerLeft tells a connection its buddy left the session early.
	PartnerLeft(connectionID string)
	// PartnerCompleted tells a connection its buddy finished the session.
	PartnerCompleted(connectionID string)
}

// Party identifies one side of a pairing.
type Party struct {
	ConnectionID string
	Username     string
}

// MatchResult describes a successful pairing. It is emitted once per match
// and never persisted.
type MatchResult struct {
	SessionID string
	A, B      Party
}
