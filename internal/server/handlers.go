// Package server exposes HTTP handlers, including WebSocket upgrades and
// health checks.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// healthResponse is the body served by HealthHandler.
type healthResponse struct {
	Status    string         `json:"status"`
	Clients   int            `json:"clients"`
	Rooms     []string       `json:"rooms"`
	Occupancy map[string]int `json:"occupancy"`
}

// WebSocketHandler upgrades the request to a WebSocket and registers the
// resulting client with the hub, which starts its read and write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	log := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr)
	if err := s.hub.Register(client); err != nil {
		log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("rejecting connection")
		_ = conn.Close()
	}
}

// HealthHandler reports that the server is up along with the number of
// connected clients, the room whitelist and per-room occupancy.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := healthResponse{
		Status:    "ok",
		Clients:   s.hub.ClientCount(),
		Rooms:     s.hub.Rooms(),
		Occupancy: s.hub.Occupancy(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("error writing health response")
	}
}
