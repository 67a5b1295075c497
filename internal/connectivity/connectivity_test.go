package connectivity

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_NotifiesOnTransitionOnly(t *testing.T) {
	m := NewManual(true)
	var got []bool
	cancel := m.Subscribe(func(online bool) { got = append(got, online) })

	m.SetOnline(true)
	m.SetOnline(false)
	m.SetOnline(false)
	m.SetOnline(true)

	cancel()
	m.SetOnline(false)

	assert.Equal(t, []bool{false, true}, got)
	assert.False(t, m.Online())
}

func TestProbe_Check(t *testing.T) {
	p := NewProbe("remote:443", time.Second, nil)
	fail := true
	p.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if fail {
			return nil, errors.New("no route to host")
		}
		client, server := net.Pipe()
		server.Close()
		return client, nil
	}

	var got []bool
	p.Subscribe(func(online bool) { got = append(got, online) })

	assert.False(t, p.Check(context.Background()))
	fail = false
	assert.True(t, p.Check(context.Background()))
	assert.True(t, p.Online())
	assert.Equal(t, []bool{true}, got, "starting offline, only the recovery is a transition")
}

func TestProbe_StartStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	p := NewProbe(ln.Addr().String(), 50*time.Millisecond, nil)
	p.Start(context.Background())
	assert.True(t, p.IsRunning())
	assert.True(t, p.Online())

	p.Stop()
	assert.False(t, p.IsRunning())
	p.Stop()
}
