package panel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rendis/proact/internal/streaming"
)

// handleSSEGlobal streams all cycle events, optionally narrowed by ?session_id=.
func (s *PanelServer) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{SessionID: r.URL.Query().Get("session_id")})
}

// handleSSECycle streams events for a single cycle.
func (s *PanelServer) handleSSECycle(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{CycleID: r.PathValue("id")})
}

func (s *PanelServer) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Sequence, event.EventType, data)
			flusher.Flush()
		}
	}
}
