package relay

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
)

// Server exposes a Hub over HTTP.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewServer returns a Server for hub. The hub must be running.
func NewServer(hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  protocol.MaxFrameSize,
			WriteBufferSize: protocol.MaxFrameSize,
			// Browsers on the portal and CLI peers both connect; the relay
			// carries no credentials of its own.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger,
	}
}

// Handler routes /ws to the relay and /health to a liveness probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/ws", s.ServeWs)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Relay is healthy."))
}

// ServeWs upgrades the request and attaches the connection to the hub.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Failed to upgrade connection", "error", err)
		return
	}

	client := NewClient(s.hub, conn)
	select {
	case s.hub.Register <- client:
	case <-s.hub.Done():
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
