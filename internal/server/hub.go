// Package server coordinates client registration, room presence, message
// broadcast, and connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/validate"
)

// ErrHubStopped is returned when handing work to a hub that is no longer running.
var ErrHubStopped = errors.New("hub stopped")

// inboundFrame is a frame read from client, or its close notice when closed
// is set. Both travel on one channel so a connection's frames are handled
// before its cleanup.
type inboundFrame struct {
	client *Client
	data   []byte
	closed bool
}

// Hub owns the connection registry and the room directory. Every mutation of
// either happens on the goroutine running Run; the mutex only lets other
// goroutines read the registry.
type Hub struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics
	rooms   *presence.Directory
	now     func() time.Time

	clients   map[*Client]struct{}
	occupancy map[string]int
	mutex     sync.RWMutex
	register  chan *Client
	inbound   chan inboundFrame

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub for cfg. Metrics are registered on reg.
func NewHub(cfg Config, log zerolog.Logger, reg prometheus.Registerer) *Hub {
	cfg = cfg.Sanitize()
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:      cfg,
		log:      log.With().Str("component", "hub").Logger(),
		metrics:  newMetrics(reg),
		rooms:    presence.NewDirectory(validate.NewWhitelist(cfg.Rooms...)),
		now:      time.Now,
		clients:  make(map[*Client]struct{}),
		register: make(chan *Client),
		inbound:  make(chan inboundFrame, 64),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	h.refreshOccupancy()
	return h
}

// Rooms returns the room whitelist.
func (h *Hub) Rooms() []string {
	return h.rooms.Rooms()
}

// Occupancy returns the number of distinct usernames present in each room.
func (h *Hub) Occupancy() map[string]int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	out := make(map[string]int, len(h.occupancy))
	for room, n := range h.occupancy {
		out[room] = n
	}
	return out
}

// refreshOccupancy publishes the directory's per-room counts for readers
// outside the event loop.
func (h *Hub) refreshOccupancy() {
	counts := h.rooms.Counts()
	for room, n := range counts {
		h.metrics.roomOccupancy.WithLabelValues(room).Set(float64(n))
	}

	h.mutex.Lock()
	h.occupancy = counts
	h.mutex.Unlock()
}

// Register hands a new connection to the hub, which starts its pumps.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Unregister asks the hub to clean up a connection. Repeated calls for the
// same connection are no-ops.
func (h *Hub) Unregister(c *Client) {
	if h.stopped() {
		return
	}
	select {
	case h.inbound <- inboundFrame{client: c, closed: true}:
	case <-h.done:
	}
}

// Receive queues an inbound frame from c for processing.
func (h *Hub) Receive(c *Client, data []byte) error {
	if h.stopped() {
		return ErrHubStopped
	}
	select {
	case h.inbound <- inboundFrame{client: c, data: data}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Run starts the hub's event loop. Registration, unregistration, inbound
// frames and heartbeat sweeps are processed one at a time. It returns after
// Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	h.log.Info().
		Strs("rooms", h.rooms.Rooms()).
		Dur("heartbeat", h.cfg.HeartbeatInterval).
		Msg("hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn().Msg("received nil client registration; skipping")
				continue
			}
			h.attach(client)
			h.startPumps(client)

		case frame := <-h.inbound:
			if frame.closed {
				h.detach(frame.client, "connection closed")
				continue
			}
			h.handleFrame(frame.client, frame.data)

		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) startPumps(c *Client) {
	if c.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// attach adds c to the registry as Alive with no rooms.
func (h *Hub) attach(c *Client) {
	c.liveness.Store(int32(Alive))

	h.mutex.Lock()
	h.clients[c] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.activeConnections.Set(float64(clientCount))
	c.log.Info().Int("total", clientCount).Msg("client registered")
}

// detach removes c from the registry and releases every room it holds. It
// reports false when c was already gone, which makes cleanup run once no
// matter how many close paths fire.
func (h *Hub) detach(c *Client, reason string) bool {
	if c == nil {
		return false
	}

	h.mutex.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, c)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(c.send)
	h.metrics.activeConnections.Set(float64(clientCount))

	for _, room := range c.joinedRooms() {
		username := c.rooms[room]
		delete(c.rooms, room)
		if h.rooms.Leave(room, username) {
			h.broadcastUsers(room)
		}
	}

	c.log.Info().
		Str("reason", reason).
		Stringer("liveness", c.Liveness()).
		Bool("identified", c.State() == Active).
		Int("total", clientCount).
		Msg("client unregistered")
	return true
}

// joinedRooms returns the rooms c holds, sorted so cleanup broadcasts are
// emitted in a stable order.
func (c *Client) joinedRooms() []string {
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// sweep runs one heartbeat tick over every registered connection.
func (h *Hub) sweep() {
	for _, c := range h.getClientSnapshot() {
		ping, expired := c.advanceLiveness()
		switch {
		case expired:
			h.metrics.heartbeatKills.Inc()
			c.log.Info().Msg("heartbeat missed; terminating connection")
			h.detach(c, "heartbeat timeout")
			c.closeConn()
		case ping:
			c.requestPing()
		}
	}
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) isRegistered(c *Client) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.clients[c]
	return ok
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// broadcast delivers payload to every registered connection and returns how
// many accepted it. A connection that cannot take the frame is logged and
// skipped.
func (h *Hub) broadcast(kind string, payload any) int {
	data, err := protocol.Encode(payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", kind).Msg("failed to encode broadcast")
		h.metrics.dropped(dropEncodeFailure)
		return 0
	}

	delivered := 0
	for _, c := range h.getClientSnapshot() {
		if err := h.deliver(c, data); err != nil {
			h.metrics.deliveryFailures.Inc()
			c.log.Warn().Err(err).Str("type", kind).Msg("broadcast delivery failed")
			continue
		}
		delivered++
	}

	h.metrics.broadcasts.WithLabelValues(kind).Inc()
	h.log.Debug().Str("type", kind).Int("delivered", delivered).Msg("broadcast sent")
	return delivered
}

// deliver queues data for one connection. A panic while doing so is turned
// into an error so one connection cannot abort a broadcast.
func (h *Hub) deliver(c *Client, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deliver to %s: %v", c.id, r)
		}
	}()
	return c.enqueue(data)
}

// broadcastUsers announces room's roster. Every presence change goes through
// here, so it also refreshes the occupancy snapshot.
func (h *Hub) broadcastUsers(room string) int {
	h.refreshOccupancy()
	return h.broadcast(protocol.TypeUsers, protocol.NewUsers(room, h.rooms.Snapshot(room)))
}

// shutdownClients closes every connection without presence broadcasts.
func (h *Hub) shutdownClients() {
	h.log.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]struct{})
	h.mutex.Unlock()

	for _, client := range clients {
		for room, username := range client.rooms {
			h.rooms.Leave(room, username)
		}
		client.rooms = make(map[string]string)
		close(client.send)
		client.closeConn()
	}

	h.refreshOccupancy()
	h.metrics.activeConnections.Set(0)
	h.log.Info().Int("closed", len(clients)).Msg("closed client connections")
}

// Shutdown stops the event loop and waits for every client goroutine to
// finish, or for timeout to elapse. A hub whose Run was never started
// reports context.DeadlineExceeded once timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.cancel()
	expired := time.After(timeout)

	select {
	case <-h.done:
	case <-expired:
		h.log.Warn().Msg("hub shutdown timeout reached before the event loop stopped")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-expired:
		h.log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
