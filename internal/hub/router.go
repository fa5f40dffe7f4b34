package hub

import "sync"

// Router maps a durable identity (auth token or anonymous session id)
// to the room that identity currently belongs to. It is the only state
// shared across rooms, so access is serialized with a mutex; rooms
// never touch each other's state directly.
type Router struct {
	mu       sync.Mutex
	bindings map[string]string // identity key -> room id
}

func NewRouter() *Router {
	return &Router{bindings: make(map[string]string)}
}

// Bind records that key is participating in roomID, returning the
// previously bound room id, if any.
func (r *Router) Bind(key, roomID string) (string, bool) {
	if key == "" {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.bindings[key]
	r.bindings[key] = roomID
	return prev, ok
}

// Lookup finds the room a known identity belongs to, so a dropped
// participant can resume without re-supplying the room id.
func (r *Router) Lookup(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.bindings[key]
	return roomID, ok
}

// Release removes a binding, but only if it still points at roomID, so
// a stale disconnect can't evict a newer binding.
func (r *Router) Release(key, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bindings[key] == roomID {
		delete(r.bindings, key)
	}
}

// ReleaseRoom drops every binding pointing at a destroyed room.
func (r *Router) ReleaseRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, id := range r.bindings {
		if id == roomID {
			delete(r.bindings, key)
		}
	}
}
