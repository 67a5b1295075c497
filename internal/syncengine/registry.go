package syncengine

import (
	"sort"
	"sync"
	"time"

	"budgetsync/internal/remote"
)

// Listener is the bookkeeping for one user's realtime session.
type Listener struct {
	UserID    string
	LastSync  time.Time
	LastError error

	unsubscribe []remote.Unsubscribe
}

// ListenerInfo is a read-only copy of a Listener.
type ListenerInfo struct {
	UserID    string    `json:"userId"`
	LastSync  time.Time `json:"lastSync"`
	LastError string    `json:"lastError,omitempty"`
}

// Registry tracks realtime sessions per user. Each engine owns one unless
// a shared registry is injected.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Listener
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Listener)}
}

// replace installs l for its user and returns the previous entry, if any.
func (r *Registry) replace(l *Listener) *Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.entries[l.UserID]
	r.entries[l.UserID] = l
	return prev
}

// remove deletes the entry for uid when it is still the given one (or any
// entry when l is nil) and returns what was removed.
func (r *Registry) remove(uid string, l *Listener) *Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, exists := r.entries[uid]
	if !exists || (l != nil && cur != l) {
		return nil
	}
	delete(r.entries, uid)
	return cur
}

func (r *Registry) touch(l *Listener, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.LastSync = at
}

func (r *Registry) touchUser(uid string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, found := r.entries[uid]; found {
		l.LastSync = at
	}
}

func (r *Registry) recordError(l *Listener, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.LastError = err
}

func (r *Registry) Has(uid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.entries[uid]
	return exists
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Users returns the registered user ids in sorted order.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for uid := range r.entries {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Snapshot() []ListenerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ListenerInfo, 0, len(r.entries))
	for _, l := range r.entries {
		info := ListenerInfo{UserID: l.UserID, LastSync: l.LastSync}
		if l.LastError != nil {
			info.LastError = l.LastError.Error()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (l *Listener) stop() {
	for _, unsub := range l.unsubscribe {
		unsub()
	}
	l.unsubscribe = nil
}
