package panel

import (
	"net/http"

	"github.com/rendis/proact/internal/engine"
	"github.com/rendis/proact/internal/store"
	"github.com/rendis/proact/pkg/schema"
)

const defaultPageSize = 50

// handleListCycles lists cycle summaries. Query params: session_id, status,
// parent_cycle_id, where (Expr), limit, offset.
func (s *PanelServer) handleListCycles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	cycles, err := s.deps.Service.ListCycles(r.Context(), engine.ListOptions{
		SessionID:     q.Get("session_id"),
		Status:        schema.CycleStatus(q.Get("status")),
		ParentCycleID: q.Get("parent_cycle_id"),
		Where:         q.Get("where"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if cycles == nil {
		cycles = []*engine.CycleSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycles": cycles,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *PanelServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Service.GetCycle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *PanelServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Service.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleEvents returns the persisted event log, optionally after ?since=<sequence>.
func (s *PanelServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	since, err := queryInt(r, "since", 0)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	events, err := s.deps.Service.Events(r.Context(), r.PathValue("id"), int64(since))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleEventFeed lists events of ?type= across cycles, newest first.
// Optional: cycle_id, component, limit.
func (s *PanelServer) handleEventFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	events, err := s.deps.Service.EventsByType(r.Context(), q.Get("type"), store.EventFilter{
		CycleID:   q.Get("cycle_id"),
		Component: schema.ComponentType(q.Get("component")),
		Limit:     limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

var diagramContentTypes = map[engine.DiagramFormat]string{
	engine.DiagramMermaid: "text/vnd.mermaid; charset=utf-8",
	engine.DiagramASCII:   "text/plain; charset=utf-8",
	engine.DiagramPNG:     "image/png",
	engine.DiagramSVG:     "image/svg+xml",
}

// handleDiagram renders the cycle diagram; ?format= defaults to mermaid.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	format := engine.DiagramFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = engine.DiagramMermaid
	}
	out, err := s.deps.Service.Diagram(r.Context(), r.PathValue("id"), format)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", diagramContentTypes[format])
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *PanelServer) handleArchive(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Service.ArchiveCycle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
