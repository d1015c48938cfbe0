package relay

// Registry tracks live connections and the two-way identity mapping.
//
// Invariant: each identity maps to at most one live connection id and each
// connection id to at most one identity. A rejoin under the same identity
// moves the identity to the newer connection (last join wins).
//
// Registry is not safe for concurrent use; it is confined to the Hub
// goroutine.
type Registry struct {
	conns          map[string]struct{}
	identityByConn map[string]string
	connByIdentity map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		conns:          make(map[string]struct{}),
		identityByConn: make(map[string]string),
		connByIdentity: make(map[string]string),
	}
}

// Register records a live connection with no identity yet.
func (r *Registry) Register(connID string) {
	r.conns[connID] = struct{}{}
}

// Unregister removes the connection and any identity it owned. Unregistering
// an unknown connection is a no-op.
func (r *Registry) Unregister(connID string) {
	if identity, ok := r.identityByConn[connID]; ok {
		if r.connByIdentity[identity] == connID {
			delete(r.connByIdentity, identity)
		}
		delete(r.identityByConn, connID)
	}
	delete(r.conns, connID)
}

// SetIdentity binds identity to connID, displacing any previous binding on
// either side of the map.
func (r *Registry) SetIdentity(connID, identity string) {
	if _, ok := r.conns[connID]; !ok {
		return
	}
	if prev, ok := r.connByIdentity[identity]; ok && prev != connID {
		delete(r.identityByConn, prev)
	}
	if prev, ok := r.identityByConn[connID]; ok && prev != identity {
		delete(r.connByIdentity, prev)
	}
	r.connByIdentity[identity] = connID
	r.identityByConn[connID] = identity
}

func (r *Registry) IdentityOf(connID string) (string, bool) {
	identity, ok := r.identityByConn[connID]
	return identity, ok
}

func (r *Registry) ConnectionOf(identity string) (string, bool) {
	connID, ok := r.connByIdentity[identity]
	return connID, ok
}

// Known reports whether connID is a registered live connection.
func (r *Registry) Known(connID string) bool {
	_, ok := r.conns[connID]
	return ok
}
