package firestore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"

	"budgetsync/internal/log"
	"budgetsync/internal/remote"
)

// fakeIterator feeds snapshots until stopped.
type fakeIterator struct {
	events  chan struct{}
	stopped chan struct{}
}

func newFakeIterator() *fakeIterator {
	return &fakeIterator{events: make(chan struct{}), stopped: make(chan struct{})}
}

func (it *fakeIterator) next(deliver func(func()), cb func()) error {
	select {
	case <-it.events:
		deliver(cb)
		return nil
	case <-it.stopped:
		return iterator.Done
	}
}

func TestWatch_UnsubscribeFromCallback(t *testing.T) {
	s := &Store{logger: log.Discard()}
	it := newFakeIterator()

	var unsub remote.Unsubscribe
	var calls atomic.Int32
	var returned atomic.Bool
	cb := func() {
		calls.Add(1)
		unsub()
		returned.Store(true)
	}
	unsub = s.watch(context.Background(), func(deliver func(func())) error {
		return it.next(deliver, cb)
	}, func() { close(it.stopped) }, nil)

	it.events <- struct{}{}

	require.Eventually(t, returned.Load, time.Second, 5*time.Millisecond)
	unsub()
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatch_UnsubscribeWaitsForLoop(t *testing.T) {
	s := &Store{logger: log.Discard()}
	it := newFakeIterator()

	var calls atomic.Int32
	unsub := s.watch(context.Background(), func(deliver func(func())) error {
		return it.next(deliver, func() { calls.Add(1) })
	}, func() { close(it.stopped) }, nil)

	it.events <- struct{}{}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	unsub()

	select {
	case it.events <- struct{}{}:
		t.Fatal("watch loop still running after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatch_ReportsListenerErrors(t *testing.T) {
	s := &Store{logger: log.Discard()}
	failed := make(chan error, 1)

	unsub := s.watch(context.Background(), func(func(func())) error {
		return assert.AnError
	}, func() {}, func(err error) { failed <- err })
	defer unsub()

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, assert.AnError)
	case <-time.After(time.Second):
		t.Fatal("error callback not called")
	}
}
