package matching

import "time"

// entry is one waiting request for pairing at a specific focus duration.
type entry struct {
	connID     string
	username   string
	focusTime  float64 // minutes; fractional debug values allowed
	enqueuedAt time.Time
	seq        uint64
	timer      *time.Timer
}

// waitQueue holds users waiting for a buddy in arrival order. Matching is
// FIFO within an exact focus duration; there is no duration tolerance.
// All access is serialized by the Broker's lock.
type waitQueue struct {
	entries []*entry
	byConn  map[string]*entry
	nextSeq uint64
}

func newWaitQueue() *waitQueue {
	return &waitQueue{byConn: make(map[string]*entry)}
}

// add appends a new entry at the tail and returns it. The caller must have
// removed any previous entry for the same connection first.
func (q *waitQueue) add(connID, username string, focusTime float64, now time.Time) *entry {
	q.nextSeq++
	e := &entry{
		connID:     connID,
		username:   username,
		focusTime:  focusTime,
		enqueuedAt: now,
		seq:        q.nextSeq,
	}
	q.entries = append(q.entries, e)
	q.byConn[connID] = e
	return e
}

// remove drops the entry for connID and stops its timer. Returns the removed
// entry, or nil if the connection was not queued.
func (q *waitQueue) remove(connID string) *entry {
	e, ok := q.byConn[connID]
	if !ok {
		return nil
	}
	delete(q.byConn, connID)
	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	return e
}

// get returns the pending entry for connID, if any.
func (q *waitQueue) get(connID string) *entry {
	return q.byConn[connID]
}

func (q *waitQueue) len() int {
	return len(q.entries)
}
