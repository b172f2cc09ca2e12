// Package protocol defines the JSON frames exchanged over the chat socket.
//
// Clients send join, leave and chat frames. The server sends users frames
// when a room roster changes and chat frames when someone speaks. There are
// no acknowledgements and no error frames.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame types.
const (
	TypeJoin  = "join"
	TypeLeave = "leave"
	TypeChat  = "chat"
	TypeUsers = "users"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
)

// Inbound is a frame sent by a client. Text is only meaningful for chat.
type Inbound struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Room     string `json:"room"`
	Text     string `json:"text,omitempty"`
}

// Users announces the current roster of a room.
type Users struct {
	Type  string   `json:"type"`
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

// Chat is a message relayed to every connection.
type Chat struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Room      string `json:"room"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Decode parses a client frame. It returns ErrMalformedFrame when data is
// not a JSON object with string fields, and ErrUnknownType when the type is
// missing or not one of join, leave or chat.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch in.Type {
	case TypeJoin, TypeLeave, TypeChat:
		return in, nil
	default:
		return in, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
}

// NewUsers builds a roster frame. A nil list is sent as an empty array.
func NewUsers(room string, users []string) Users {
	if users == nil {
		users = []string{}
	}
	return Users{Type: TypeUsers, Room: room, Users: users}
}

// NewChat builds a chat frame.
func NewChat(username, room, text, timestamp string) Chat {
	return Chat{
		Type:      TypeChat,
		Username:  username,
		Room:      room,
		Text:      text,
		Timestamp: timestamp,
	}
}

// Encode serializes an outbound frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
