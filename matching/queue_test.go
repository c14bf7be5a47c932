package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitQueueFIFOOrder(t *testing.T) {
	q := newWaitQueue()
	now := time.Now()

	q.add("A", "alice", 25, now)
	q.add("B", "bob", 25, now.Add(time.Second))
	q.add("C", "carol", 25, now.Add(2*time.Second))

	require.Equal(t, 3, q.len())
	assert.Equal(t, "A", q.entries[0].connID)
	assert.Equal(t, "C", q.entries[2].connID)
	assert.Less(t, q.entries[0].seq, q.entries[1].seq)
}

func TestWaitQueueRemove(t *testing.T) {
	q := newWaitQueue()
	now := time.Now()
	q.add("A", "alice", 25, now)
	q.add("B", "bob", 30, now)

	removed := q.remove("A")
	require.NotNil(t, removed)
	assert.Equal(t, "A", removed.connID)
	assert.Equal(t, 1, q.len())
	assert.Nil(t, q.get("A"))

	// Removing an absent connection is a no-op.
	assert.Nil(t, q.remove("A"))
	assert.Equal(t, 1, q.len())
}

func TestWaitQueueRemoveStopsTimer(t *testing.T) {
	q := newWaitQueue()
	e := q.add("A", "alice", 25, time.Now())

	fired := make(chan struct{}, 1)
	e.timer = time.AfterFunc(30*time.Millisecond, func() { fired <- struct{}{} })
	q.remove("A")

	select {
	case <-fired:
		t.Fatal("timer fired after entry removal")
	case <-time.After(80 * time.Millisecond):
	}
}
