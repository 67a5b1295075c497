package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a size and TTL bounded cache. Evicted values are handed to the
// eviction callback outside the lock so they can release resources.
type LRU[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time
	onEvict func(key string, value T)
}

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

type LRUOption[T any] func(*LRU[T])

// WithEvict registers fn for values removed by capacity, expiry or Delete.
func WithEvict[T any](fn func(key string, value T)) LRUOption[T] {
	return func(c *LRU[T]) { c.onEvict = fn }
}

func WithLRUClock[T any](now func() time.Time) LRUOption[T] {
	return func(c *LRU[T]) { c.now = now }
}

// NewLRU creates a cache holding at most maxSize entries for ttl each. A
// zero ttl never expires.
func NewLRU[T any](maxSize int, ttl time.Duration, opts ...LRUOption[T]) *LRU[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &LRU[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LRU[T]) expired(e *entry[T], now time.Time) bool {
	return c.ttl > 0 && now.After(e.expiresAt)
}

func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	var zero T
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	e := elem.Value.(*entry[T])
	if c.expired(e, c.now()) {
		c.removeLocked(elem)
		c.mu.Unlock()
		c.evicted([]*entry[T]{e})
		return zero, false
	}
	c.order.MoveToFront(elem)
	c.mu.Unlock()
	return e.value, true
}

// GetOrCreate returns the cached value for key or stores the one built by
// create. create runs under the cache lock.
func (c *LRU[T]) GetOrCreate(key string, create func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		v := elem.Value.(*entry[T]).value
		c.mu.Unlock()
		return v, nil
	}
	v, err := create()
	if err != nil {
		c.mu.Unlock()
		var zero T
		return zero, err
	}
	dropped := c.setLocked(key, v)
	c.mu.Unlock()
	c.evicted(dropped)
	return v, nil
}

func (c *LRU[T]) Set(key string, value T) {
	c.mu.Lock()
	dropped := c.setLocked(key, value)
	c.mu.Unlock()
	c.evicted(dropped)
}

func (c *LRU[T]) setLocked(key string, value T) []*entry[T] {
	e := &entry[T]{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	if elem, ok := c.items[key]; ok {
		old := elem.Value.(*entry[T])
		elem.Value = e
		c.order.MoveToFront(elem)
		return []*entry[T]{old}
	}
	c.items[key] = c.order.PushFront(e)

	var dropped []*entry[T]
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		dropped = append(dropped, oldest.Value.(*entry[T]))
		c.removeLocked(oldest)
	}
	return dropped
}

func (c *LRU[T]) Delete(key string) {
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e := elem.Value.(*entry[T])
	c.removeLocked(elem)
	c.mu.Unlock()
	c.evicted([]*entry[T]{e})
}

// Keys lists the cached keys, most recently used first.
func (c *LRU[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry[T]).key)
	}
	return keys
}

// Purge removes every entry, calling the eviction callback for each.
func (c *LRU[T]) Purge() {
	c.mu.Lock()
	var dropped []*entry[T]
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		dropped = append(dropped, elem.Value.(*entry[T]))
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()
	c.evicted(dropped)
}

func (c *LRU[T]) removeLocked(elem *list.Element) {
	delete(c.items, elem.Value.(*entry[T]).key)
	c.order.Remove(elem)
}

func (c *LRU[T]) evicted(entries []*entry[T]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range entries {
		c.onEvict(e.key, e.value)
	}
}

// CleanExpired removes all expired entries and returns how many went.
func (c *LRU[T]) CleanExpired() int {
	c.mu.Lock()
	now := c.now()
	var dropped []*entry[T]
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if e := elem.Value.(*entry[T]); c.expired(e, now) {
			dropped = append(dropped, e)
			c.removeLocked(elem)
		}
		elem = next
	}
	c.mu.Unlock()
	c.evicted(dropped)
	return len(dropped)
}

func (c *LRU[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
