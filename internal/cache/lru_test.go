package cache

import (
	"slices"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := NewLRU[int](2, 0, WithEvict(func(k string, _ int) { evicted = append(evicted, k) }))

	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if !slices.Equal(evicted, []string{"b"}) {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
	if got := c.Keys(); !slices.Equal(got, []string{"c", "a"}) {
		t.Errorf("Keys() = %v, want [c a]", got)
	}
}

func TestLRU_TTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	evictions := 0
	c := NewLRU[string](10, time.Minute,
		WithLRUClock[string](clock.now),
		WithEvict(func(string, string) { evictions++ }))

	c.Set("u1", "engine-1")
	c.Set("u2", "engine-2")
	clock.advance(30 * time.Second)
	c.Set("u2", "engine-2b")
	clock.advance(45 * time.Second)

	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if _, ok := c.Get("u1"); ok {
		t.Error("u1 should have expired")
	}
	if v, ok := c.Get("u2"); !ok || v != "engine-2b" {
		t.Errorf("Get(u2) = %q, %v", v, ok)
	}
	// one for the replaced value, one for the expired entry
	if evictions != 2 {
		t.Errorf("evictions = %d, want 2", evictions)
	}
}

func TestLRU_GetOrCreate(t *testing.T) {
	c := NewLRU[int](4, 0)
	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	for range 3 {
		v, err := c.GetOrCreate("u1", create)
		if err != nil || v != 42 {
			t.Fatalf("GetOrCreate() = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}

func TestLRU_PurgeAndDelete(t *testing.T) {
	var evicted []string
	c := NewLRU[int](4, 0, WithEvict(func(k string, _ int) { evicted = append(evicted, k) }))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	c.Delete("missing")
	c.Purge()

	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
	if !slices.Equal(evicted, []string{"a", "b"}) {
		t.Errorf("evicted = %v, want [a b]", evicted)
	}
}

func TestWindow_Admit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := NewWindow(10 * time.Second)
	w.now = clock.now

	if !w.Admit("u1") {
		t.Fatal("first request should pass")
	}
	if w.Admit("u1") {
		t.Error("burst within the window should be dropped")
	}
	if !w.Admit("u2") {
		t.Error("other users are independent")
	}

	clock.advance(10 * time.Second)
	if !w.Admit("u1") {
		t.Error("request after the window should pass")
	}

	w.Forget("u1")
	if !w.Admit("u1") {
		t.Error("forgotten key should pass")
	}

	clock.advance(time.Minute)
	if n := w.CleanExpired(); n != 2 {
		t.Errorf("CleanExpired() = %d, want 2", n)
	}
}

func TestJanitor_Sweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[int](4, time.Second, WithLRUClock[int](clock.now))
	w := NewWindow(time.Second)
	w.now = clock.now
	c.Set("a", 1)
	w.Admit("a")
	clock.advance(2 * time.Second)

	j := NewJanitor(nil, c, w)
	if n := j.Sweep(); n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}

	j.Start(time.Millisecond)
	j.Stop()
}
