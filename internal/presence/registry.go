// Package presence tracks which connections are currently online. It owns the
// user profiles for all active (and recently disconnected) sessions, keyed by
// connection ID, and is the single source of truth for the peer list.
package presence

import (
	"sync"
	"time"
)

// Status constants for the profile lifecycle. Any other non-empty string is a
// valid client-supplied status (e.g. "away", "busy").
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Profile is the per-session user record. One profile exists per
// currently-or-recently-connected session; the connection ID doubles as the
// user identifier for the lifetime of the session.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"` // unix milliseconds
}

// Registry is a goroutine-safe, insertion-ordered map of connection ID to
// profile. Iteration order (ListOthers) is registration order, which is a
// deliberate contract: the peer list a client sees is stable across calls.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	order    []string // connection IDs in first-registration order
	now      func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]*Profile),
		now:      time.Now,
	}
}

// Register creates or overwrites the profile for the given connection ID with
// status online and a fresh last-seen timestamp. Re-registering an existing ID
// refreshes the profile in place and keeps its original position in the
// iteration order. Display names are not unique; they are labels, not keys.
func (r *Registry) Register(id, name, avatar string) *Profile {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		r.order = append(r.order, id)
	}
	p := &Profile{
		ID:       id,
		Name:     name,
		Avatar:   avatar,
		Status:   StatusOnline,
		LastSeen: r.now().UnixMilli(),
	}
	r.profiles[id] = p
	return r.snapshot(p)
}

// Get returns a copy of the profile for the given connection ID, or nil if it
// is not registered.
func (r *Registry) Get(id string) *Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil
	}
	return r.snapshot(p)
}

// Has reports whether the connection ID is currently registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	_, ok := r.profiles[id]
	r.mu.RUnlock()
	return ok
}

// ListOthers returns every registered profile except the one for excludeID, in
// registration order. The returned profiles are copies.
func (r *Registry) ListOthers(excludeID string) []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	others := make([]*Profile, 0, len(r.order))
	for _, id := range r.order {
		if id == excludeID {
			continue
		}
		if p, ok := r.profiles[id]; ok {
			others = append(others, r.snapshot(p))
		}
	}
	return others
}

// UpdateStatus sets the status for a registered connection and refreshes
// last-seen. It is a silent no-op if the ID is not registered.
func (r *Registry) UpdateStatus(id, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return
	}
	p.Status = status
	p.LastSeen = r.now().UnixMilli()
}

// MarkOffline sets the profile's status to offline and refreshes last-seen
// without removing the entry. The entry stays visible until the disconnect
// grace period elapses and Remove is called.
func (r *Registry) MarkOffline(id string) {
	r.UpdateStatus(id, StatusOffline)
}

// Remove deletes the profile entirely. Removing an absent ID is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		return
	}
	delete(r.profiles, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered profiles, including those marked
// offline but not yet removed.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.profiles)
	r.mu.RUnlock()
	return n
}

// CountOnline returns the number of profiles whose status is not offline.
func (r *Registry) CountOnline() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, p := range r.profiles {
		if p.Status != StatusOffline {
			n++
		}
	}
	return n
}

// snapshot returns a copy so callers can never mutate registry-owned state.
func (r *Registry) snapshot(p *Profile) *Profile {
	cp := *p
	return &cp
}
