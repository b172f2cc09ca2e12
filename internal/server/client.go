// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and liveness tracking for each connection.
package server

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

// ErrSendBufferFull is returned when a connection's outbound queue is full.
var ErrSendBufferFull = errors.New("send buffer full")

// Liveness is the heartbeat state of a connection.
type Liveness int32

const (
	// Alive means a pong (or the initial handshake) was seen since the last sweep.
	Alive Liveness = iota
	// PendingPong means a ping was sent and no pong has arrived yet.
	PendingPong
	// Dead means the connection missed a ping cycle and was terminated.
	Dead
)

func (l Liveness) String() string {
	switch l {
	case Alive:
		return "alive"
	case PendingPong:
		return "pending_pong"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("liveness(%d)", int32(l))
	}
}

// SessionState is the protocol state of a connection.
type SessionState int

const (
	// Unidentified connections have not joined any room yet.
	Unidentified SessionState = iota
	// Active connections have joined at least once.
	Active
)

// Client represents a WebSocket client connection in the chat system.
//
// username and rooms are owned by the hub's event loop and must only be
// touched from there.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	ping           chan struct{}
	hub            *Hub
	addr           string
	log            zerolog.Logger
	maxMessageSize int64
	pongWait       time.Duration
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
	liveness       atomic.Int32
	closeOnce      sync.Once

	username string
	// rooms maps each joined room to the username this connection holds
	// presence under.
	rooms map[string]string
}

// NewClient creates a new Client instance with the provided WebSocket connection,
// hub reference, and client address. conn may be nil for a client that is
// driven directly through the hub.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		ping:           make(chan struct{}, 1),
		hub:            hub,
		addr:           addr,
		log:            hub.log.With().Str("client_id", id).Str("addr", addr).Logger(),
		maxMessageSize: cfg.MaxMessageSize,
		pongWait:       3 * cfg.HeartbeatInterval,
		limiter:        newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		rooms:          make(map[string]string),
	}
}

// newRateLimiter allows Burst messages per RefillInterval, refilled evenly.
func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	every := rate.Limit(float64(cfg.Burst) / cfg.RefillInterval.Seconds())
	return rate.NewLimiter(every, cfg.Burst)
}

// ID returns the connection identity.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Liveness returns the current heartbeat state.
func (c *Client) Liveness() Liveness {
	return Liveness(c.liveness.Load())
}

// State returns the protocol state. Only call it from the hub's event loop
// or after the hub has stopped.
func (c *Client) State() SessionState {
	if c.username == "" {
		return Unidentified
	}
	return Active
}

// markAlive records a pong. A dead connection stays dead.
func (c *Client) markAlive() bool {
	for {
		cur := c.liveness.Load()
		if Liveness(cur) == Dead {
			return false
		}
		if c.liveness.CompareAndSwap(cur, int32(Alive)) {
			return true
		}
	}
}

// advanceLiveness moves the connection one sweep tick forward. It reports
// whether a ping should be sent and whether the connection missed its
// previous ping and must be terminated.
func (c *Client) advanceLiveness() (ping, expired bool) {
	if c.liveness.CompareAndSwap(int32(Alive), int32(PendingPong)) {
		return true, false
	}
	if c.liveness.CompareAndSwap(int32(PendingPong), int32(Dead)) {
		return false, true
	}
	return false, false
}

// enqueue hands a frame to the write pump without blocking.
func (c *Client) enqueue(message []byte) error {
	select {
	case c.send <- message:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

// closeConn closes the underlying socket once. It is safe to call from any
// goroutine.
func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		if c.conn == nil {
			return
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection")
		}
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if !c.markAlive() {
			return nil
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the reason a read loop ended.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Info().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info().Err(err).Msg("client connection closed")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Warn().Err(err).Msg("unexpected websocket close")
	default:
		c.log.Info().Err(err).Msg("websocket read ended")
	}
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding message")
		c.hub.metrics.dropped(dropRateLimited)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeConn()
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if err := c.hub.Receive(c, rawMessage); err != nil {
			c.hub.metrics.dropped(dropHubStopped)
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.closeConn()

	for c.processWriteEvent() {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent() bool {
	select {
	case message, ok := <-c.send:
		if !ok {
			return c.writeCloseMessage()
		}
		return c.writeTextMessage(message)
	case <-c.ping:
		return c.writePing()
	}
}

// writeCloseMessage sends a close frame to the client.
func (c *Client) writeCloseMessage() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("error writing close message")
		}
	}
	return false
}

// writeTextMessage writes one JSON frame.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline")
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing message")
		}
		return false
	}
	return true
}

// writePing sends a heartbeat ping.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing ping message")
		}
		return false
	}
	return true
}
