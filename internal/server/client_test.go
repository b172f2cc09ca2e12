package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	h := newTestHub(t, func(cfg *Config) { cfg.SendBufferSize = 8 })

	c := NewClient(nil, h, "127.0.0.1:12345")

	require.NotNil(t, c)
	assert.NotEmpty(t, c.ID())
	assert.NotEqual(t, c.ID(), NewClient(nil, h, "127.0.0.1:12345").ID())
	assert.Equal(t, 8, cap(c.GetSendChan()))
	assert.Equal(t, Alive, c.Liveness())
	assert.Equal(t, Unidentified, c.State())
	assert.Equal(t, 3*defaultHeartbeatInterval, c.pongWait)
}

func TestLivenessTransitions(t *testing.T) {
	h := newTestHub(t, nil)
	c := NewClient(nil, h, "127.0.0.1:1")

	ping, expired := c.advanceLiveness()
	assert.True(t, ping)
	assert.False(t, expired)
	assert.Equal(t, PendingPong, c.Liveness())

	assert.True(t, c.markAlive())
	assert.Equal(t, Alive, c.Liveness())

	c.advanceLiveness()
	ping, expired = c.advanceLiveness()
	assert.False(t, ping)
	assert.True(t, expired)
	assert.Equal(t, Dead, c.Liveness())

	ping, expired = c.advanceLiveness()
	assert.False(t, ping)
	assert.False(t, expired, "a dead connection expires once")
	assert.False(t, c.markAlive())
	assert.Equal(t, Dead, c.Liveness())
}

func TestLivenessConcurrentPongAndSweep(t *testing.T) {
	h := newTestHub(t, nil)
	c := NewClient(nil, h, "127.0.0.1:1")

	var expirations int
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.markAlive()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if _, expired := c.advanceLiveness(); expired {
				expirations++
			}
		}
	}()
	wg.Wait()

	assert.LessOrEqual(t, expirations, 1)
	if expirations == 1 {
		assert.Equal(t, Dead, c.Liveness())
	}
}

func TestLivenessString(t *testing.T) {
	assert.Equal(t, "alive", Alive.String())
	assert.Equal(t, "pending_pong", PendingPong.String())
	assert.Equal(t, "dead", Dead.String())
	assert.Equal(t, "liveness(7)", Liveness(7).String())
}

func TestEnqueueFullBuffer(t *testing.T) {
	h := newTestHub(t, func(cfg *Config) { cfg.SendBufferSize = 1 })
	c := NewClient(nil, h, "127.0.0.1:1")

	require.NoError(t, c.enqueue([]byte("one")))
	err := c.enqueue([]byte("two"))
	assert.True(t, errors.Is(err, ErrSendBufferFull))
}

func TestRequestPingCoalesces(t *testing.T) {
	h := newTestHub(t, nil)
	c := NewClient(nil, h, "127.0.0.1:1")

	c.requestPing()
	c.requestPing()

	assert.Len(t, c.ping, 1)
}

func TestCloseConnWithoutTransport(t *testing.T) {
	h := newTestHub(t, nil)
	c := NewClient(nil, h, "127.0.0.1:1")

	assert.NotPanics(t, func() {
		c.closeConn()
		c.closeConn()
	})
}

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: time.Hour})

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(), "message %d within burst", i)
	}
	assert.False(t, limiter.Allow())
}
