// Package connectivity reports whether the remote store is reachable.
package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"budgetsync/internal/log"
)

// Observer is the connectivity capability consumed by the sync engine.
type Observer interface {
	Online() bool
	// Subscribe registers fn for every transition. The returned cancel
	// removes it.
	Subscribe(fn func(online bool)) (cancel func())
}

// notifier keeps the current state and fans transitions out to listeners.
type notifier struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]func(bool)
	next      int
}

func (n *notifier) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *notifier) Subscribe(fn func(online bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[int]func(bool))
	}
	id := n.next
	n.next++
	n.listeners[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// set records the state and notifies listeners when it changed.
func (n *notifier) set(online bool) bool {
	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return false
	}
	n.online = online
	fns := make([]func(bool), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	return true
}

// Manual is switched by the caller, e.g. from the --offline flag.
type Manual struct {
	notifier
}

func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

func (m *Manual) SetOnline(online bool) {
	m.set(online)
}

// Probe dials a TCP address on an interval and treats a successful
// handshake as online.
type Probe struct {
	notifier
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	logger   *log.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewProbe(addr string, interval time.Duration, logger *log.Logger) *Probe {
	if logger == nil {
		logger = log.Discard()
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	d := &net.Dialer{}
	return &Probe{
		addr:     addr,
		interval: interval,
		timeout:  timeout,
		dial:     d.DialContext,
		logger:   logger.WithComponent(log.ComponentConnectivity),
	}
}

// Check dials once and updates the state.
func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.addr)
	online := err == nil
	if conn != nil {
		conn.Close()
	}
	if p.set(online) {
		if online {
			p.logger.Info("Remote reachable", log.FieldOnline, true, "addr", p.addr)
		} else {
			p.logger.Warn("Remote unreachable", log.FieldOnline, false, "addr", p.addr, log.FieldError, err)
		}
	}
	return online
}

// Start runs an immediate check and then probes until Stop.
func (p *Probe) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.running = true

	p.Check(ctx)

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Check(ctx)
			}
		}
	}()
}

func (p *Probe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.cancel()
	<-p.done
	p.running = false
}

func (p *Probe) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
