package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/proact/internal/engine"
	"github.com/rendis/proact/pkg/schema"
)

const (
	actionStart    = "start"
	actionUpdate   = "update"
	actionComplete = "complete"
	actionRevise   = "revise"
	actionNavigate = "navigate"
	actionArchive  = "archive"

	resourceCycles = "cycles"
	resourceEvents = "events"
	resourceReplay = "replay"
	resourceJQ     = "jq"
)

// handleCreate opens a new decision cycle for a session.
func (s *ProactServer) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	s.captureSession(ctx, sessionID)

	view, err := s.service.CreateCycle(ctx, sessionID)
	if err != nil {
		return toolError("create failed", err), nil
	}
	return marshalResult(view)
}

// handleComponent dispatches a stage operation.
func (s *ProactServer) handleComponent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycleID, err := req.RequireString("cycle_id")
	if err != nil {
		return mcp.NewToolResultError("cycle_id is required"), nil
	}
	name, err := req.RequireString("component")
	if err != nil {
		return mcp.NewToolResultError("component is required"), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	ct, err := schema.ParseComponentType(name)
	if err != nil {
		return toolError("invalid component", err), nil
	}

	var view *engine.CycleView
	switch action {
	case actionStart:
		view, err = s.service.StartComponent(ctx, cycleID, ct)
	case actionUpdate:
		output, ok := req.GetArguments()["output"]
		if !ok || output == nil {
			return mcp.NewToolResultError("output is required for update"), nil
		}
		raw, marshalErr := json.Marshal(output)
		if marshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid output: %v", marshalErr)), nil
		}
		view, err = s.service.UpdateComponentOutput(ctx, cycleID, ct, raw)
	case actionComplete:
		view, err = s.service.CompleteComponent(ctx, cycleID, ct)
	case actionRevise:
		view, err = s.service.MarkForRevision(ctx, cycleID, ct, req.GetString("reason", ""))
	case actionNavigate:
		view, err = s.service.NavigateTo(ctx, cycleID, ct)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown component action: %s", action)), nil
	}
	if err != nil {
		return toolError(action+" failed", err), nil
	}

	s.captureSession(ctx, view.SessionID)
	return marshalResult(view)
}

// handleBranch forks a cycle at a stage.
func (s *ProactServer) handleBranch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycleID, err := req.RequireString("cycle_id")
	if err != nil {
		return mcp.NewToolResultError("cycle_id is required"), nil
	}
	name, err := req.RequireString("branch_point")
	if err != nil {
		return mcp.NewToolResultError("branch_point is required"), nil
	}
	ct, err := schema.ParseComponentType(name)
	if err != nil {
		return toolError("invalid branch point", err), nil
	}

	view, err := s.service.BranchCycle(ctx, cycleID, ct, req.GetString("label", ""))
	if err != nil {
		return toolError("branch failed", err), nil
	}
	s.captureSession(ctx, view.SessionID)
	return marshalResult(view)
}

// handleLifecycle completes or archives a cycle.
func (s *ProactServer) handleLifecycle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycleID, err := req.RequireString("cycle_id")
	if err != nil {
		return mcp.NewToolResultError("cycle_id is required"), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	var view *engine.CycleView
	switch action {
	case actionComplete:
		view, err = s.service.CompleteCycle(ctx, cycleID)
	case actionArchive:
		view, err = s.service.ArchiveCycle(ctx, cycleID)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown lifecycle action: %s", action)), nil
	}
	if err != nil {
		return toolError(action+" failed", err), nil
	}
	return marshalResult(view)
}

// handleStatus returns the full cycle document, progress included.
func (s *ProactServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycleID, err := req.RequireString("cycle_id")
	if err != nil {
		return mcp.NewToolResultError("cycle_id is required"), nil
	}

	view, err := s.service.GetCycle(ctx, cycleID)
	if err != nil {
		return toolError("status query failed", err), nil
	}
	return marshalResult(view)
}

// handleQuery lists cycles, reads events or replayed state, or runs a jq projection.
func (s *ProactServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case resourceCycles:
		return s.queryCycles(ctx, filter)
	case resourceEvents:
		return s.queryEvents(ctx, filter)
	case resourceReplay:
		return s.queryReplay(ctx, filter)
	case resourceJQ:
		return s.queryJQ(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleDiagram renders a cycle diagram. PNG is returned as image content,
// the other formats as text.
func (s *ProactServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycleID, err := req.RequireString("cycle_id")
	if err != nil {
		return mcp.NewToolResultError("cycle_id is required"), nil
	}
	format := engine.DiagramFormat(req.GetString("format", string(engine.DiagramMermaid)))

	out, err := s.service.Diagram(ctx, cycleID, format)
	if err != nil {
		return toolError("diagram failed", err), nil
	}
	if format == engine.DiagramPNG {
		return mcp.NewToolResultImage("cycle "+cycleID, base64.StdEncoding.EncodeToString(out), "image/png"), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// --- Query helpers ---

func (s *ProactServer) queryCycles(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	opts := engine.ListOptions{
		SessionID:     extractString(filter, "session_id"),
		Status:        schema.CycleStatus(extractString(filter, "status")),
		ParentCycleID: extractString(filter, "parent_cycle_id"),
		Where:         extractString(filter, "where"),
		Limit:         extractInt(filter, "limit", 50),
		Offset:        extractInt(filter, "offset", 0),
	}

	cycles, err := s.service.ListCycles(ctx, opts)
	if err != nil {
		return toolError("query failed", err), nil
	}
	return marshalResult(map[string]any{"cycles": cycles})
}

func (s *ProactServer) queryEvents(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	cycleID := extractString(filter, "cycle_id")
	if cycleID == "" {
		return mcp.NewToolResultError("event query requires 'cycle_id' in filter"), nil
	}
	since := int64(extractInt(filter, "since", 0))

	events, err := s.service.Events(ctx, cycleID, since)
	if err != nil {
		return toolError("query failed", err), nil
	}
	return marshalResult(map[string]any{"events": events})
}

func (s *ProactServer) queryReplay(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	cycleID := extractString(filter, "cycle_id")
	if cycleID == "" {
		return mcp.NewToolResultError("replay query requires 'cycle_id' in filter"), nil
	}

	state, err := s.service.Replay(ctx, cycleID)
	if err != nil {
		return toolError("replay failed", err), nil
	}
	return marshalResult(state)
}

func (s *ProactServer) queryJQ(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	cycleID := extractString(filter, "cycle_id")
	query := extractString(filter, "query")
	if cycleID == "" || query == "" {
		return mcp.NewToolResultError("jq query requires 'cycle_id' and 'query' in filter"), nil
	}

	result, err := s.service.QueryCycle(ctx, cycleID, query)
	if err != nil {
		return toolError("query failed", err), nil
	}
	return marshalResult(map[string]any{"result": result})
}

// --- Internal helpers ---

// toolError renders a service error for the agent. Structured errors keep
// their code, component and field.
func toolError(prefix string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

// captureSession maps the decision session to the current MCP session for notifications.
func (s *ProactServer) captureSession(ctx context.Context, sessionID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(sessionID, session.SessionID())
	}
}

func componentNames() []string {
	types := schema.ComponentTypes()
	names := make([]string, len(types))
	for i, ct := range types {
		names[i] = string(ct)
	}
	return names
}

func extractString(filter map[string]any, key string) string {
	if filter == nil {
		return ""
	}
	v, _ := filter[key].(string)
	return v
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
