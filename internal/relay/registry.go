package relay

// Conn is the transport handle the relay delivers outbound frames through.
// Implementations must not block: delivery happens on the relay's event
// loop and queueing to the transport is the only suspension point allowed.
type Conn interface {
	SendMessage(v any) error
}

// Connection is one live session tracked by the registry. Username is set
// once on identify and never changes for the session's lifetime. Room is
// the name of the single room the connection is currently a member of,
// empty until the connection identifies.
type Connection struct {
	ID       string
	Username string
	Room     string
	conn     Conn
}

// Identified reports whether the connection has bound a username.
func (c *Connection) Identified() bool {
	return c.Username != ""
}

// Registry owns every live connection record. It keeps insertion order so
// presence snapshots are stable for a given join sequence. All methods are
// called exclusively from the relay event loop; registry operations are
// in-memory and cannot fail transiently.
type Registry struct {
	conns map[string]*Connection
	order []string
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register creates a session record in an unjoined, unidentified state.
func (r *Registry) Register(id string, conn Conn) *Connection {
	if c, ok := r.conns[id]; ok {
		return c
	}
	c := &Connection{ID: id, conn: conn}
	r.conns[id] = c
	r.order = append(r.order, id)
	return c
}

// Identify binds a username to a connection. It returns nil when the
// connection is unknown or already identified; both cases are no-ops.
func (r *Registry) Identify(id, username string) *Connection {
	c, ok := r.conns[id]
	if !ok || c.Identified() {
		return nil
	}
	c.Username = username
	return c
}

// Lookup returns the connection record for id.
func (r *Registry) Lookup(id string) (*Connection, bool) {
	c, ok := r.conns[id]
	return c, ok
}

// Deregister removes the record and returns it so the caller can reconcile
// room membership and typing state.
func (r *Registry) Deregister(id string) (*Connection, bool) {
	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return c, true
}

// Each visits every live connection in insertion order.
func (r *Registry) Each(fn func(*Connection)) {
	for _, id := range r.order {
		if c, ok := r.conns[id]; ok {
			fn(c)
		}
	}
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.conns)
}
