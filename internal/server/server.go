package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// Server ties a Hub to its HTTP surface. Each Server owns its own hub,
// metrics registry and origin policy, so several can run in one process.
type Server struct {
	cfg      Config
	log      zerolog.Logger
	hub      *Hub
	registry *prometheus.Registry
	origins  *originPolicy
	upgrader websocket.Upgrader
}

// New creates a Server for cfg. Call Start to run the hub before serving.
func New(cfg Config, log zerolog.Logger) *Server {
	cfg = cfg.Sanitize()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		cfg:      cfg,
		log:      log,
		hub:      NewHub(cfg, log, registry),
		registry: registry,
		origins:  newOriginPolicy(cfg.AllowedOrigins, log.With().Str("component", "origin").Logger()),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	return s.cfg
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the hub's event loop in a new goroutine.
func (s *Server) Start() {
	go s.hub.Run()
	s.log.Info().Msg("hub started and ready to manage websocket connections")
}

// Handler returns the HTTP routes for the server.
func (s *Server) Handler() http.Handler {
	return SetupRoutes(s)
}

// Shutdown stops the hub, closing every connection, and waits up to the
// context deadline for client goroutines to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return s.hub.Shutdown(timeout)
}
