package ws

import (
	"fmt"
	"sync"
)

// DirectRoomKey derives the fan-out key for a 1:1 conversation. It is pure
// and order-independent: both participants compute the same key no matter
// who initiates, so there is no lookup/creation race.
func DirectRoomKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// GroupRoomKey derives the fan-out key for a broadcast group.
func GroupRoomKey(groupID int64) string {
	return fmt.Sprintf("group:%d", groupID)
}

// Rooms tracks which local connections are subscribed to which fan-out
// keys. Membership is process-local; cross-instance members are reached
// through the fanout backbone, never through this map.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[*Client]struct{}
	// current direct room per connection, for the switch-conversation policy
	direct map[*Client]string
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[*Client]struct{}),
		direct:  make(map[*Client]string),
	}
}

func (r *Rooms) Join(c *Client, roomKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.join(c, roomKey)
}

func (r *Rooms) join(c *Client, roomKey string) {
	set, ok := r.members[roomKey]
	if !ok {
		set = make(map[*Client]struct{})
		r.members[roomKey] = set
	}
	set[c] = struct{}{}
}

func (r *Rooms) Leave(c *Client, roomKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(c, roomKey)
}

func (r *Rooms) leave(c *Client, roomKey string) {
	if set, ok := r.members[roomKey]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.members, roomKey)
		}
	}
	if r.direct[c] == roomKey {
		delete(r.direct, c)
	}
}

// JoinDirect switches the connection's active direct room: the previous one
// is left first. A connection in zero or several rooms is still valid; this
// just keeps the common case to one.
func (r *Rooms) JoinDirect(c *Client, roomKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.direct[c]; ok && prev != roomKey {
		r.leave(c, prev)
	}
	r.join(c, roomKey)
	r.direct[c] = roomKey
}

// MembersOf returns a snapshot of the local connections in the room.
func (r *Rooms) MembersOf(roomKey string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[roomKey]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// LeaveAll drops the connection from every room it joined.
func (r *Rooms) LeaveAll(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, set := range r.members {
		delete(set, c)
		if len(set) == 0 {
			delete(r.members, key)
		}
	}
	delete(r.direct, c)
}
