package server

import (
	"errors"

	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/validate"
)

// timestampLayout renders chat timestamps as 2-digit hour and minute.
const timestampLayout = "15:04"

// handleFrame decodes one inbound frame from c and applies it. Frames that
// fail to decode or validate are logged and dropped; the sender is never
// told.
func (h *Hub) handleFrame(c *Client, raw []byte) {
	if !h.isRegistered(c) {
		c.log.Debug().Msg("dropping frame from unregistered connection")
		return
	}

	in, err := protocol.Decode(raw)
	if err != nil {
		reason := dropMalformed
		if errors.Is(err, protocol.ErrUnknownType) {
			reason = dropUnknownType
		}
		h.drop(c, reason, err)
		return
	}

	h.metrics.framesReceived.WithLabelValues(in.Type).Inc()

	switch in.Type {
	case protocol.TypeJoin:
		h.handleJoin(c, in)
	case protocol.TypeLeave:
		h.handleLeave(c, in)
	case protocol.TypeChat:
		h.handleChat(c, in)
	}
}

// target validates the room and username every frame carries.
func (h *Hub) target(c *Client, in protocol.Inbound) (room, username string, ok bool) {
	if !h.rooms.IsValidRoom(in.Room) {
		h.drop(c, dropInvalidRoom, validate.ErrUnknownRoom)
		return "", "", false
	}
	username, err := validate.Username(in.Username)
	if err != nil {
		h.drop(c, dropInvalidUser, err)
		return "", "", false
	}
	return in.Room, username, true
}

// handleJoin records the join on c, adds presence, and always announces the
// room roster so the joiner sees a fresh list.
func (h *Hub) handleJoin(c *Client, in protocol.Inbound) {
	room, username, ok := h.target(c, in)
	if !ok {
		return
	}

	held, member := c.rooms[room]
	switch {
	case !member:
		h.rooms.Join(room, username)
	case held != username:
		h.rooms.Leave(room, held)
		h.rooms.Join(room, username)
	}
	c.rooms[room] = username
	c.username = username

	c.log.Info().Str("room", room).Str("username", username).Msg("joined room")
	h.broadcastUsers(room)
}

// handleLeave releases c's hold on room. The roster is only announced when a
// username actually disappeared from it.
func (h *Hub) handleLeave(c *Client, in protocol.Inbound) {
	room, _, ok := h.target(c, in)
	if !ok {
		return
	}

	held, member := c.rooms[room]
	if !member {
		h.metrics.dropped(dropNotMember)
		c.log.Debug().Str("room", room).Msg("leave for a room the connection has not joined")
		return
	}
	delete(c.rooms, room)

	c.log.Info().Str("room", room).Str("username", held).Msg("left room")
	if h.rooms.Leave(room, held) {
		h.broadcastUsers(room)
	}
}

// handleChat relays sanitized text to every connection with a server
// timestamp.
func (h *Hub) handleChat(c *Client, in protocol.Inbound) {
	room, username, ok := h.target(c, in)
	if !ok {
		return
	}

	text, err := validate.Message(in.Text)
	if err != nil {
		h.drop(c, dropEmptyText, err)
		return
	}

	msg := protocol.NewChat(username, room, text, h.now().Format(timestampLayout))
	h.broadcast(protocol.TypeChat, msg)
}

func (h *Hub) drop(c *Client, reason string, err error) {
	h.metrics.dropped(reason)
	c.log.Warn().Err(err).Str("reason", reason).Msg("dropping inbound frame")
}
