package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rachelchenchi/focuser/stream"
)

type note struct {
	event           string
	connID          string
	partnerID       string
	partnerUsername string
}

// fakeNotifier records every outbound notification for inspection.
type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (f *fakeNotifier) MatchSuccess(connID, partnerID, partnerUsername string) {
	f.record(note{"match_success", connID, partnerID, partnerUsername})
}

func (f *fakeNotifier) MatchTimeout(connID string) {
	f.record(note{event: "match_timeout", connID: connID})
}

func (f *fakeNotifier) PartnerLeft(connID string) {
	f.record(note{event: "partner_left", connID: connID})
}

func (f *fakeNotifier) PartnerCompleted(connID string) {
	f.record(note{event: "partner_completed", connID: connID})
}

func (f *fakeNotifier) record(n note) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
}

func (f *fakeNotifier) byEvent(event string) []note {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []note
	for _, n := range f.notes {
		if n.event == event {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeNotifier) notesSnapshot() []note {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]note(nil), f.notes...)
}

func (f *fakeNotifier) forConn(connID, event string) []note {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []note
	for _, n := range f.notes {
		if n.connID == connID && n.event == event {
			out = append(out, n)
		}
	}
	return out
}

// fakePublisher records lifecycle events.
type fakePublisher struct {
	mu     sync.Mutex
	events []stream.Event
}

func (f *fakePublisher) Publish(_ context.Context, event stream.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Type() string { return "fake" }
func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

func (f *fakePublisher) snapshot() []stream.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stream.Event(nil), f.events...)
}

func newTestBroker(t *testing.T, waitTimeout time.Duration) (*Broker, *fakeNotifier) {
	t.Helper()
	notifier := &fakeNotifier{}
	b := New(Config{WaitTimeout: waitTimeout, ServerID: "test-broker"}, notifier, stream.NewNoopPublisher())
	t.Cleanup(b.Close)
	return b, notifier
}

func TestMatchPairsEqualDurations(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	b.Register("A")
	b.Register("B")

	b.StartMatching("A", 25, "alice")
	require.Empty(t, n.byEvent("match_success"), "no match before a second user arrives")

	b.StartMatching("B", 25, "bob")

	aNotes := n.forConn("A", "match_success")
	require.Len(t, aNotes, 1)
	assert.Equal(t, "B", aNotes[0].partnerID)
	assert.Equal(t, "bob", aNotes[0].partnerUsername)

	bNotes := n.forConn("B", "match_success")
	require.Len(t, bNotes, 1)
	assert.Equal(t, "A", bNotes[0].partnerID)
	assert.Equal(t, "alice", bNotes[0].partnerUsername)
}

func TestFIFOFairness(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	for _, id := range []string{"A", "B", "C"} {
		b.Register(id)
	}

	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25, "bob")

	// A and B match immediately; the earliest-enqueued entry wins, so a
	// third user pairs with nobody until a fourth arrives.
	require.Len(t, n.forConn("A", "match_success"), 1)

	b.StartMatching("C", 25, "carol")
	assert.Empty(t, n.forConn("C", "match_success"))

	b.Register("D")
	b.StartMatching("D", 25, "dave")
	cNotes := n.forConn("C", "match_success")
	require.Len(t, cNotes, 1)
	assert.Equal(t, "D", cNotes[0].partnerID)
}

func TestEarliestEntryMatchedFirst(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	for _, id := range []string{"A", "B", "C", "D"} {
		b.Register(id)
	}

	b.StartMatching("A", 45, "alice")
	b.StartMatching("B", 25, "bob")
	b.StartMatching("C", 25, "carol")

	// C pairs with B: B is the first FIFO entry at 25; A (earlier, but at
	// 45) is skipped.
	cNotes := n.forConn("C", "match_success")
	require.Len(t, cNotes, 1)
	assert.Equal(t, "B", cNotes[0].partnerID)
	assert.Empty(t, n.forConn("A", "match_success"))
}

func TestExactDurationEquality(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	for _, id := range []string{"A", "B", "C"} {
		b.Register(id)
	}

	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25.5, "bob")
	assert.Empty(t, n.byEvent("match_success"), "25 and 25.5 must not pair")

	// Fractional debug values compare exactly too.
	b.StartMatching("C", 25.5, "carol")
	require.Len(t, n.forConn("B", "match_success"), 1)
}

func TestReplaceSemanticsOnReEnqueue(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	for _, id := range []string{"A", "B", "C"} {
		b.Register(id)
	}

	b.StartMatching("A", 25, "alice")
	b.StartMatching("A", 30, "alice")

	// The 25-minute entry is gone: B at 25 finds nobody.
	b.StartMatching("B", 25, "bob")
	assert.Empty(t, n.byEvent("match_success"))

	// The 30-minute entry is live: C pairs with A.
	b.StartMatching("C", 30, "carol")
	cNotes := n.forConn("C", "match_success")
	require.Len(t, cNotes, 1)
	assert.Equal(t, "A", cNotes[0].partnerID)
}

func TestReEnqueueSameDurationDoesNotSelfMatch(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	b.Register("A")

	b.StartMatching("A", 25, "alice")
	b.StartMatching("A", 25, "alice")

	assert.Empty(t, n.byEvent("match_success"), "a connection must never pair with itself")
}

func TestQueueTimeoutFiresOnce(t *testing.T) {
	b, n := newTestBroker(t, 50*time.Millisecond)
	b.Register("A")

	b.StartMatching("A", 25, "alice")

	require.Eventually(t, func() bool {
		return len(n.forConn("A", "match_timeout")) == 1
	}, time.Second, 5*time.Millisecond)

	// The timer is single-shot: no further timeout arrives.
	time.Sleep(120 * time.Millisecond)
	assert.Len(t, n.forConn("A", "match_timeout"), 1)
	assert.Empty(t, n.byEvent("match_success"))
}

func TestMatchJustBeforeTimeout(t *testing.T) {
	b, n := newTestBroker(t, 150*time.Millisecond)
	b.Register("A")
	b.Register("B")

	b.StartMatching("A", 25, "alice")
	time.Sleep(100 * time.Millisecond)
	b.StartMatching("B", 25, "bob")

	require.Len(t, n.forConn("A", "match_success"), 1)
	require.Len(t, n.forConn("B", "match_success"), 1)

	// Match and timeout are mutually exclusive outcomes: A's timer was
	// cancelled at match time and must not fire.
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, n.byEvent("match_timeout"))
}

func TestCancelMatching(t *testing.T) {
	b, n := newTestBroker(t, 50*time.Millisecond)
	b.Register("A")

	b.StartMatching("A", 25, "alice")
	b.CancelMatching("A")
	b.CancelMatching("A") // idempotent

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, n.notesSnapshot())
}

func TestDisconnectWhileQueued(t *testing.T) {
	b, n := newTestBroker(t, 50*time.Millisecond)
	b.Register("A")
	b.Register("B")

	b.StartMatching("A", 25, "alice")
	b.Unregister("A")

	// The dead entry must not match or time out.
	b.StartMatching("B", 25, "bob")
	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, n.forConn("A", "match_timeout"))
	assert.Empty(t, n.byEvent("match_success"))
}

func TestPartnerLeftOnDisconnect(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	b.Register("A")
	b.Register("B")
	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25, "bob")

	b.Unregister("A")

	require.Len(t, n.forConn("B", "partner_left"), 1)
	assert.Empty(t, n.forConn("A", "partner_left"))
}

func TestLeaveNotificationIdempotent(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	b.Register("A")
	b.Register("B")
	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25, "bob")

	b.LeaveSession("A", "B")
	b.LeaveSession("A", "B")
	b.Unregister("A")

	assert.Len(t, n.forConn("B", "partner_left"), 1)
}

func TestCompletionNotificationIdempotent(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	b.Register("A")
	b.Register("B")
	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25, "bob")

	b.CompleteSession("A", "B")
	b.CompleteSession("A", "B")

	assert.Len(t, n.forConn("B", "partner_completed"), 1)
}

func TestCompletionSuppressesLeave(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	b.Register("A")
	b.Register("B")
	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25, "bob")

	b.CompleteSession("A", "B")
	b.Unregister("A")

	assert.Len(t, n.forConn("B", "partner_completed"), 1)
	assert.Empty(t, n.forConn("B", "partner_left"), "a finished buddy must not be reported as having left")
}

func TestLeaveWithWrongPartnerIgnored(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	b.Register("A")
	b.Register("B")
	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25, "bob")

	b.LeaveSession("A", "nobody")
	b.CompleteSession("A", "nobody")

	assert.Empty(t, n.forConn("B", "partner_left"))
	assert.Empty(t, n.forConn("B", "partner_completed"))
}

func TestEventsWithoutSessionIgnored(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	b.Register("A")

	b.LeaveSession("A", "B")
	b.CompleteSession("A", "B")

	assert.Empty(t, n.notesSnapshot())
}

func TestStartMatchingWhileInSessionIgnored(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	for _, id := range []string{"A", "B", "C"} {
		b.Register(id)
	}
	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25, "bob")

	// A is in a session; its re-enqueue is ignored, so C finds no buddy.
	b.StartMatching("A", 25, "alice")
	b.StartMatching("C", 25, "carol")
	assert.Empty(t, n.forConn("C", "match_success"))
}

func TestSessionRemovedAfterBothExit(t *testing.T) {
	b, n := newTestBroker(t, time.Minute)
	b.Register("A")
	b.Register("B")
	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25, "bob")

	b.LeaveSession("A", "B")
	b.LeaveSession("B", "A")

	// Session is gone: further events for it are protocol errors and
	// produce nothing.
	b.CompleteSession("A", "B")
	assert.Empty(t, n.byEvent("partner_completed"))

	// Both may queue again.
	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25, "bob")
	assert.Len(t, n.forConn("A", "match_success"), 2)
}

func TestInvalidFocusTimeIgnored(t *testing.T) {
	b, n := newTestBroker(t, 50*time.Millisecond)
	b.Register("A")

	b.StartMatching("A", 0, "alice")
	b.StartMatching("A", -5, "alice")

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, n.notesSnapshot())
}

func TestLifecycleStreamEvents(t *testing.T) {
	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}
	b := New(Config{WaitTimeout: time.Minute, ServerID: "test-broker"}, notifier, publisher)

	b.Register("A")
	b.Register("B")
	b.StartMatching("A", 25, "alice")
	b.StartMatching("B", 25, "bob")
	b.CompleteSession("A", "B")
	b.CompleteSession("B", "A")
	b.Close()

	// Publishes run in goroutines; Close waits for them but their order
	// is not defined, so compare as a multiset.
	assert.ElementsMatch(t, []string{
		stream.EventMatchMade,
		stream.EventSessionCompleted,
		stream.EventSessionCompleted,
		stream.EventSessionEnded,
	}, publisher.kinds())

	for _, e := range publisher.snapshot() {
		assert.Equal(t, "test-broker", e.ServerID)
	}
}
