package matching

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rachelchenchi/focuser/metrics"
	"github.com/rachelchenchi/focuser/stream"
)

const streamPublishTimeout = 10 * time.Second

// Config holds the broker's tunables.
type Config struct {
	// WaitTimeout is how long a queue entry waits for a buddy before it
	// expires unmatched.
	WaitTimeout time.Duration
	// ServerID identifies this broker instance on the lifecycle stream.
	ServerID string
}

// Broker is the matchmaking and paired-session coordinator. It owns the
// connection registry, the wait queue and the session registry exclusively;
// all mutations go through its exported methods, which serialize on a single
// lock so no two handlers for the same entry or session ever interleave.
// Timer callbacks take the same lock and re-check presence before acting, so
// a match and a timeout can never both fire for one entry.
//
// Notifications and stream publishes are delivered after the lock is
// released; nothing inside the matching critical section blocks on I/O.
type Broker struct {
	mu       sync.Mutex
	cfg      Config
	notifier Notifier
	stream   stream.Publisher

	registry *connectionRegistry
	queue    *waitQueue
	sessions *sessionRegistry

	closed bool
	wg     sync.WaitGroup
}

// New creates a broker. The notifier must not be nil; pass a
// stream.NoopPublisher when no lifecycle stream is configured.
func New(cfg Config, notifier Notifier, publisher stream.Publisher) *Broker {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	if publisher == nil {
		publisher = stream.NewNoopPublisher()
	}
	return &Broker{
		cfg:      cfg,
		notifier: notifier,
		stream:   publisher,
		registry: newConnectionRegistry(),
		queue:    newWaitQueue(),
		sessions: newSessionRegistry(),
	}
}

// Register adds a live connection. Registering an already-known id is a
// no-op.
func (b *Broker) Register(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry.register(connID)
}

// Unregister removes a connection and cascades: any pending queue entry is
// dropped (its timer cancelled, no timeout notification) and any active
// session sees the disconnect as a leave, with the completion flag checked
// first so a finished buddy is never reported as having left. Idempotent.
func (b *Broker) Unregister(connID string) {
	b.mu.Lock()
	if !b.registry.live(connID) {
		b.mu.Unlock()
		return
	}
	if e := b.queue.remove(connID); e != nil {
		metrics.QueueDepth.Set(float64(b.queue.len()))
		log.Printf("Client %s disconnected while queued, entry dropped", connID)
	}
	b.registry.unregister(connID)
	notes := b.exitSessionLocked(connID)
	b.mu.Unlock()

	for _, n := range notes {
		n()
	}
}

// StartMatching enqueues a connection for pairing at the given focus
// duration. If the connection is already queued its old entry is replaced.
// If a FIFO-eligible entry with the exact same duration is waiting, both
// entries are removed, a session is created and both parties are notified
// with the other side's identity.
func (b *Broker) StartMatching(connID string, focusTime float64, username string) {
	b.mu.Lock()
	if !b.registry.live(connID) {
		b.mu.Unlock()
		log.Printf("start_matching from unknown connection %s, ignored", connID)
		return
	}
	if focusTime <= 0 {
		b.mu.Unlock()
		log.Printf("start_matching from %s with invalid focus_time %v, ignored", connID, focusTime)
		return
	}
	if s := b.sessions.byConnection(connID); s != nil && !s.members[connID].gone() {
		b.mu.Unlock()
		log.Printf("start_matching from %s while in session %s, ignored", connID, s.id)
		return
	}
	b.registry.setUsername(connID, username)

	// Replace semantics: a re-enqueue silently drops the previous entry
	// and its timer, never double-queues.
	if old := b.queue.remove(connID); old != nil {
		log.Printf("Client %s re-queued, replacing entry at focus_time %v", connID, old.focusTime)
	}

	now := time.Now()
	if buddy := b.firstLiveMatchLocked(focusTime, connID); buddy != nil {
		b.queue.remove(buddy.connID)
		metrics.QueueDepth.Set(float64(b.queue.len()))

		me := &entry{connID: connID, username: username, focusTime: focusTime, enqueuedAt: now}
		s := b.sessions.create(buddy, me, now)
		result := MatchResult{
			SessionID: s.id,
			A:         Party{ConnectionID: buddy.connID, Username: buddy.username},
			B:         Party{ConnectionID: connID, Username: username},
		}
		metrics.MatchesMade.Inc()
		metrics.MatchWaitSeconds.Observe(now.Sub(buddy.enqueuedAt).Seconds())
		metrics.ActiveSessions.Set(float64(b.sessions.count()))
		log.Printf("Matched %s with %s for %v minutes (session %s)", connID, buddy.connID, focusTime, s.id)

		b.publishLocked(stream.Event{
			Kind:      stream.EventMatchMade,
			SessionID: result.SessionID,
			Members:   []string{result.A.ConnectionID, result.B.ConnectionID},
			FocusTime: focusTime,
			At:        now,
		})
		b.mu.Unlock()

		// Asymmetric delivery: each side learns the other's identity.
		// Writes happen outside the lock, so a partner disconnecting right
		// after the match can have its partner_left delivered before this
		// match_success frame. Clients must tolerate that ordering.
		b.notifier.MatchSuccess(result.B.ConnectionID, result.A.ConnectionID, result.A.Username)
		b.notifier.MatchSuccess(result.A.ConnectionID, result.B.ConnectionID, result.B.Username)
		return
	}

	e := b.queue.add(connID, username, focusTime, now)
	seq := e.seq
	e.timer = time.AfterFunc(b.cfg.WaitTimeout, func() {
		b.onWaitTimeout(connID, seq)
	})
	metrics.QueueDepth.Set(float64(b.queue.len()))
	log.Printf("Client %s queued for %v minutes, waiting for a buddy", connID, focusTime)
	b.mu.Unlock()
}

// CancelMatching removes a pending queue entry and cancels its timer.
// Idempotent: cancelling when not queued is a no-op.
func (b *Broker) CancelMatching(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e := b.queue.remove(connID); e != nil {
		metrics.QueueDepth.Set(float64(b.queue.len()))
		log.Printf("Client %s cancelled matching", connID)
	}
}

// LeaveSession records that a session member left early. The other member,
// if still connected, hears partner_left exactly once; a member that already
// signaled completion produces no notification at all.
func (b *Broker) LeaveSession(connID, partnerID string) {
	b.mu.Lock()
	s := b.sessions.byConnection(connID)
	if s == nil {
		b.mu.Unlock()
		log.Printf("leaving_session from %s with no active session, ignored", connID)
		return
	}
	if p := s.partnerOf(connID); p == nil || p.connID != partnerID {
		b.mu.Unlock()
		log.Printf("leaving_session from %s names partner %s, not a member of session %s, ignored", connID, partnerID, s.id)
		return
	}
	notes := b.exitSessionLocked(connID)
	b.mu.Unlock()

	for _, n := range notes {
		n()
	}
}

// CompleteSession marks a member's completion. The other member, if still
// connected, hears partner_completed exactly once. Completion does not imply
// a leave: a later disconnect of the completing member is silent toward the
// partner.
func (b *Broker) CompleteSession(connID, partnerID string) {
	b.mu.Lock()
	s := b.sessions.byConnection(connID)
	if s == nil {
		b.mu.Unlock()
		log.Printf("session_complete from %s with no active session, ignored", connID)
		return
	}
	partner := s.partnerOf(connID)
	if partner == nil || partner.connID != partnerID {
		b.mu.Unlock()
		log.Printf("session_complete from %s names partner %s, not a member of session %s, ignored", connID, partnerID, s.id)
		return
	}

	m := s.members[connID]
	var notes []func()
	if !m.completeNotified {
		m.completeNotified = true
		m.completed = true
		log.Printf("Client %s completed session %s", connID, s.id)
		b.publishLocked(stream.Event{
			Kind:      stream.EventSessionCompleted,
			SessionID: s.id,
			Members:   []string{connID},
			FocusTime: s.focusTime,
			At:        time.Now(),
		})
		if b.registry.live(partner.connID) {
			metrics.PartnerNotifications.WithLabelValues("partner_completed").Inc()
			partnerConn := partner.connID
			notes = append(notes, func() { b.notifier.PartnerCompleted(partnerConn) })
		}
	}
	if s.done() {
		b.removeSessionLocked(s)
	}
	b.mu.Unlock()

	for _, n := range notes {
		n()
	}
}

// firstLiveMatchLocked scans in FIFO order for the earliest entry with the
// exact same focus duration whose connection is still live. Entries for dead
// connections should not exist (disconnect cascades dequeue), but the scan
// re-checks liveness before committing to a match.
func (b *Broker) firstLiveMatchLocked(focusTime float64, excludeConn string) *entry {
	for _, e := range b.queue.entries {
		if e.connID == excludeConn {
			continue
		}
		if e.focusTime == focusTime && b.registry.live(e.connID) {
			return e
		}
	}
	return nil
}

// exitSessionLocked applies the leave cascade for connID: checks the
// completion flag first, notifies the surviving partner at most once, and
// removes the session when both members have exited. Returns the
// notifications to deliver after the lock is released.
func (b *Broker) exitSessionLocked(connID string) []func() {
	s := b.sessions.byConnection(connID)
	if s == nil {
		return nil
	}
	m := s.members[connID]
	m.exited = true

	var notes []func()
	// Completion suppresses the leave notification: a buddy who finished
	// must not be reported as having left.
	if !m.completed && !m.leaveNotified {
		m.leaveNotified = true
		if partner := s.partnerOf(connID); partner != nil && b.registry.live(partner.connID) {
			metrics.PartnerNotifications.WithLabelValues("partner_left").Inc()
			log.Printf("Client %s left session %s, notifying partner %s", connID, s.id, partner.connID)
			partnerConn := partner.connID
			notes = append(notes, func() { b.notifier.PartnerLeft(partnerConn) })
		}
	}
	if s.done() {
		b.removeSessionLocked(s)
	}
	return notes
}

func (b *Broker) removeSessionLocked(s *session) {
	b.sessions.remove(s)
	metrics.ActiveSessions.Set(float64(b.sessions.count()))
	log.Printf("Session %s ended, both members gone", s.id)
	b.publishLocked(stream.Event{
		Kind:      stream.EventSessionEnded,
		SessionID: s.id,
		FocusTime: s.focusTime,
		At:        time.Now(),
	})
}

// onWaitTimeout fires when a queue entry's timer expires. The entry may have
// been matched, replaced or cancelled concurrently, so presence and the
// entry's sequence number are checked under the lock before anything
// happens; a stale timer is a no-op.
func (b *Broker) onWaitTimeout(connID string, seq uint64) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	e := b.queue.get(connID)
	if e == nil || e.seq != seq {
		b.mu.Unlock()
		return
	}
	b.queue.remove(connID)
	metrics.QueueDepth.Set(float64(b.queue.len()))
	metrics.MatchTimeouts.Inc()
	log.Printf("Client %s timed out waiting for a buddy at focus_time %v", connID, e.focusTime)
	b.publishLocked(stream.Event{
		Kind:      stream.EventMatchTimeout,
		Members:   []string{connID},
		FocusTime: e.focusTime,
		At:        time.Now(),
	})
	b.mu.Unlock()

	b.notifier.MatchTimeout(connID)
}

// publishLocked hands an event to the lifecycle stream in a tracked
// goroutine so publishing never blocks the matching critical section.
func (b *Broker) publishLocked(event stream.Event) {
	event.ServerID = b.cfg.ServerID
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), streamPublishTimeout)
		defer cancel()
		if err := b.stream.Publish(ctx, event); err != nil {
			log.Printf("Failed to publish %s event: %v", event.Kind, err)
			return
		}
		metrics.StreamEventsPublished.WithLabelValues(b.stream.Type()).Inc()
	}()
}

// Close cancels all pending timers and waits for in-flight stream publishes.
// The broker must not be used afterwards.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	for _, e := range b.queue.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}
