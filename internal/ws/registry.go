package ws

import (
	"sync"
	"time"
)

const registryShards = 16

// Registry maps authenticated identities to their live connection handles.
// It is the source of truth for local presence: a user is online while at
// least one handle is bound to them (multi-device).
//
// State is sharded by identity so unrelated users' connect/disconnect
// traffic does not serialize on one lock.
type Registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu      sync.RWMutex
	handles map[int64]map[*Client]struct{}
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].handles = make(map[int64]map[*Client]struct{})
	}
	return r
}

func (r *Registry) shard(identity int64) *registryShard {
	return &r.shards[uint64(identity)%registryShards]
}

// Register binds the handle to the identity. Idempotent. Returns true when
// the identity went from zero handles to one (came online).
func (r *Registry) Register(identity int64, c *Client) (wentOnline bool) {
	s := r.shard(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.handles[identity]
	if !ok {
		set = make(map[*Client]struct{})
		s.handles[identity] = set
	}
	wasEmpty := len(set) == 0
	set[c] = struct{}{}
	return wasEmpty
}

// Unregister removes the handle. Unknown handles are a no-op, so a double
// disconnect is harmless. Returns true when the identity's last handle was
// removed (went offline), with the last-seen timestamp captured here.
func (r *Registry) Unregister(identity int64, c *Client) (wentOffline bool, lastSeen time.Time) {
	s := r.shard(identity)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.handles[identity]
	if !ok {
		return false, time.Time{}
	}
	if _, ok := set[c]; !ok {
		return false, time.Time{}
	}
	delete(set, c)
	if len(set) == 0 {
		delete(s.handles, identity)
		return true, time.Now()
	}
	return false, time.Time{}
}

func (r *Registry) IsOnline(identity int64) bool {
	s := r.shard(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles[identity]) > 0
}

// HandlesFor returns a snapshot of the identity's live handles.
func (r *Registry) HandlesFor(identity int64) []*Client {
	s := r.shard(identity)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.handles[identity]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// AllHandles snapshots every handle on this instance, for global fan-out.
func (r *Registry) AllHandles() []*Client {
	var out []*Client
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, set := range s.handles {
			for c := range set {
				out = append(out, c)
			}
		}
		s.mu.RUnlock()
	}
	return out
}
