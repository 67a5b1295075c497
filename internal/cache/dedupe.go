package cache

import (
	"sync"
	"time"
)

// Window remembers when each key was last admitted and refuses the key
// again until the window has passed.
type Window struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func NewWindow(window time.Duration) *Window {
	return &Window{window: window, seen: make(map[string]time.Time), now: time.Now}
}

// Admit reports whether key may proceed and, if so, records it.
func (w *Window) Admit(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	if last, ok := w.seen[key]; ok && now.Sub(last) < w.window {
		return false
	}
	w.seen[key] = now
	return true
}

// Forget lets key through on its next Admit, used after a failed attempt.
func (w *Window) Forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.seen, key)
}

// CleanExpired drops keys whose window has passed.
func (w *Window) CleanExpired() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	n := 0
	for k, last := range w.seen {
		if now.Sub(last) >= w.window {
			delete(w.seen, k)
			n++
		}
	}
	return n
}
