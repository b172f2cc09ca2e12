// Package testhelpers provides common utilities for testing the chat relay
// over real WebSocket connections.
//
// It wraps the gorilla dialer with the relay's JSON frames so tests can
// join rooms, send chat, and wait for specific broadcasts without repeating
// the plumbing.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// DefaultOrigin is an origin the default configuration accepts.
const DefaultOrigin = "http://localhost:4000"

// Frame is a decoded outbound frame. Users is only set on users frames.
type Frame struct {
	Type      string   `json:"type"`
	Room      string   `json:"room"`
	Users     []string `json:"users"`
	Username  string   `json:"username"`
	Text      string   `json:"text"`
	Timestamp string   `json:"timestamp"`
}

// WebSocketURL converts an httptest server URL into the relay's socket URL.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials url with DefaultOrigin and closes the connection when
// the test ends.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url, DefaultOrigin)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Send writes an inbound frame.
func Send(t *testing.T, conn *websocket.Conn, in protocol.Inbound) {
	t.Helper()
	if err := conn.WriteJSON(in); err != nil {
		t.Fatalf("Failed to send %s frame: %v", in.Type, err)
	}
}

// Join sends a join frame.
func Join(t *testing.T, conn *websocket.Conn, username, room string) {
	t.Helper()
	Send(t, conn, protocol.Inbound{Type: protocol.TypeJoin, Username: username, Room: room})
}

// Leave sends a leave frame.
func Leave(t *testing.T, conn *websocket.Conn, username, room string) {
	t.Helper()
	Send(t, conn, protocol.Inbound{Type: protocol.TypeLeave, Username: username, Room: room})
}

// Chat sends a chat frame.
func Chat(t *testing.T, conn *websocket.Conn, username, room, text string) {
	t.Helper()
	Send(t, conn, protocol.Inbound{Type: protocol.TypeChat, Username: username, Room: room, Text: text})
}

// ReadFrame reads and decodes one frame, waiting at most timeout.
func ReadFrame(conn *websocket.Conn, timeout time.Duration) (Frame, error) {
	var f Frame
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return f, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return f, err
	}
	err = json.Unmarshal(data, &f)
	return f, err
}

// ReadUntil reads frames until match returns true, failing the test if
// timeout elapses first. Frames that do not match are discarded.
func ReadUntil(t *testing.T, conn *websocket.Conn, timeout time.Duration, match func(Frame) bool) Frame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out after %s waiting for a matching frame", timeout)
		}
		f, err := ReadFrame(conn, remaining)
		if err != nil {
			t.Fatalf("Failed waiting for a matching frame: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

// UsersFrame matches a users frame for room listing exactly users, in order.
func UsersFrame(room string, users ...string) func(Frame) bool {
	return func(f Frame) bool {
		if f.Type != protocol.TypeUsers || f.Room != room || len(f.Users) != len(users) {
			return false
		}
		for i := range users {
			if f.Users[i] != users[i] {
				return false
			}
		}
		return true
	}
}

// ExpectNoFrame fails the test if a frame arrives within timeout. A read
// deadline expiring breaks the connection, so call it last.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	f, err := ReadFrame(conn, timeout)
	if err == nil {
		t.Fatalf("Expected no frame, got %+v", f)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
