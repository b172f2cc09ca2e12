// Package server implements the chat relay: WebSocket connections, the
// room presence registry, broadcast fan-out, and heartbeat-based liveness.
//
// A Server wires a Hub to HTTP routes. The Hub's event loop is the only
// goroutine that mutates connection or room state; each Client runs a read
// pump that feeds frames into the loop and a write pump that drains its
// send queue onto the socket.
package server
