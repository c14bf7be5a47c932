package matching

// connection is a live client known to the broker. Username is display-only
// and may be filled in later, when the client first asks for a match.
type connection struct {
	id       string
	username string
}

// connectionRegistry tracks live connections for a single broker instance.
// All access is serialized by the Broker's lock.
type connectionRegistry struct {
	conns map[string]*connection
}

func newConnectionRegistry() *connectionRegistry {
	return &connectionRegistry{conns: make(map[string]*connection)}
}

func (r *connectionRegistry) register(id string) {
	if _, ok := r.conns[id]; ok {
		return
	}
	r.conns[id] = &connection{id: id}
}

// unregister is idempotent: removing an absent id is a no-op.
func (r *connectionRegistry) unregister(id string) {
	delete(r.conns, id)
}

func (r *connectionRegistry) live(id string) bool {
	_, ok := r.conns[id]
	return ok
}

func (r *connectionRegistry) setUsername(id, username string) {
	if c, ok := r.conns[id]; ok {
		c.username = username
	}
}
