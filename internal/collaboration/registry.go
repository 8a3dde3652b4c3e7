package collaboration

import "sync"

// Registry maps a document id to the connections currently editing it.
// It is the only source of truth for who receives a delta.
// Learning: Members returns a copy taken under the read lock, so a broadcast
// never iterates a member set while Join or Leave is changing it.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Connection]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[*Connection]struct{})}
}

// Join registers c under documentID. It reports whether the room was created.
// c is a broadcast target as soon as Join returns.
func (r *Registry) Join(documentID string, c *Connection) (created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[documentID]
	if !ok {
		room = make(map[*Connection]struct{})
		r.rooms[documentID] = room
	}
	room[c] = struct{}{}
	return !ok
}

// Leave removes c from documentID's room. Leaving a connection that is not
// registered is a no-op. It reports whether the room became empty and was removed.
func (r *Registry) Leave(documentID string, c *Connection) (emptied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[documentID]
	if !ok {
		return false
	}
	if _, member := room[c]; !member {
		return false
	}
	delete(room, c)
	if len(room) == 0 {
		delete(r.rooms, documentID)
		return true
	}
	return false
}

// Members returns a snapshot of documentID's room.
func (r *Registry) Members(documentID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[documentID]
	members := make([]*Connection, 0, len(room))
	for c := range room {
		members = append(members, c)
	}
	return members
}

// Count returns the number of connections in documentID's room.
func (r *Registry) Count(documentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[documentID])
}

// Rooms returns the number of live rooms.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// All returns every registered connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*Connection
	for _, room := range r.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	return all
}
