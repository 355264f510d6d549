// Package panel serves a read-mostly HTTP view of decision cycles: JSON
// endpoints over the command service and Server-Sent Events from the hub.
package panel

import (
	"log/slog"
	"net/http"

	"github.com/rendis/proact/internal/engine"
	"github.com/rendis/proact/internal/streaming"
)

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Service engine.Service
	Hub     streaming.EventHub // nil disables the /sse routes
	Logger  *slog.Logger
}

// PanelServer serves the cycle panel API.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Register mounts the panel routes on mux.
func (s *PanelServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cycles", s.handleListCycles)
	mux.HandleFunc("GET /api/cycles/{id}", s.handleGetCycle)
	mux.HandleFunc("GET /api/cycles/{id}/progress", s.handleProgress)
	mux.HandleFunc("GET /api/cycles/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/cycles/{id}/diagram", s.handleDiagram)
	mux.HandleFunc("GET /api/events", s.handleEventFeed)

	mux.HandleFunc("POST /api/cycles/{id}/archive", s.handleArchive)

	if s.deps.Hub != nil {
		mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
		mux.HandleFunc("GET /sse/cycles/{id}", s.handleSSECycle)
	}
}
