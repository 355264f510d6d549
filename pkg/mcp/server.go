// Package mcp exposes the decision cycle service to agents as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/proact/internal/engine"
	"github.com/rendis/proact/internal/streaming"
)

// ServerDeps holds the dependencies for creating a ProactServer.
type ServerDeps struct {
	Service engine.Service
	Hub     streaming.EventHub // optional; enables event notifications
	Logger  *slog.Logger
	Version string
}

// ProactServer wraps an MCP server with decision cycle tool handlers.
type ProactServer struct {
	service   engine.Service
	hub       streaming.EventHub
	sessions  *SessionRegistry
	notifier  *Notifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewProactServer creates a ProactServer with all 7 tools registered.
func NewProactServer(deps ServerDeps) *ProactServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &ProactServer{
		service:  deps.Service,
		hub:      deps.Hub,
		sessions: NewSessionRegistry(),
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"proact",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("PrOACT guides a decision through nine stages: issue raising, problem frame, objectives, alternatives, consequences, tradeoffs, recommendation, decision quality and notes. Use proact.create to open a cycle, proact.component to start, fill, complete, revise or focus a stage, proact.branch to explore an alternative path, proact.lifecycle to complete or archive, proact.status and proact.query to read state, and proact.diagram to visualize it."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewNotifier(mcpSrv, s.sessions, logger)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin
// closes. With a hub configured, cycle events are pushed to the MCP session
// that owns the decision session.
func (s *ProactServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.hub != nil {
		go func() {
			if err := s.notifier.Forward(ctx, s.hub); err != nil {
				s.logger.Warn("event forwarding stopped", slog.String("error", err.Error()))
			}
		}()
	}

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ProactServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *ProactServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: createTool(), Handler: s.handleCreate},
		{Tool: componentTool(), Handler: s.handleComponent},
		{Tool: branchTool(), Handler: s.handleBranch},
		{Tool: lifecycleTool(), Handler: s.handleLifecycle},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func createTool() mcp.Tool {
	return mcp.NewTool("proact.create",
		mcp.WithDescription("Create a new decision cycle"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the conversation session that owns the cycle")),
	)
}

func componentTool() mcp.Tool {
	return mcp.NewTool("proact.component",
		mcp.WithDescription("Operate on one stage of a decision cycle"),
		mcp.WithString("cycle_id", mcp.Required(), mcp.Description("ID of the cycle")),
		mcp.WithString("component", mcp.Required(),
			mcp.Enum(componentNames()...),
			mcp.Description("Stage to operate on"),
		),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum(actionStart, actionUpdate, actionComplete, actionRevise, actionNavigate),
			mcp.Description("start, update (replace output), complete, revise (mark for revision) or navigate (focus)"),
		),
		mcp.WithObject("output", mcp.Description("Structured stage output (required for update)")),
		mcp.WithString("reason", mcp.Description("Why the stage needs revision (revise only)")),
	)
}

func branchTool() mcp.Tool {
	return mcp.NewTool("proact.branch",
		mcp.WithDescription("Fork a new cycle at a started stage to explore an alternative path"),
		mcp.WithString("cycle_id", mcp.Required(), mcp.Description("ID of the source cycle")),
		mcp.WithString("branch_point", mcp.Required(),
			mcp.Enum(componentNames()...),
			mcp.Description("Stage to branch at; earlier stages are copied, later ones reset"),
		),
		mcp.WithString("label", mcp.Description("Branch label (default: derived from the branch point)")),
	)
}

func lifecycleTool() mcp.Tool {
	return mcp.NewTool("proact.lifecycle",
		mcp.WithDescription("Complete or archive a decision cycle"),
		mcp.WithString("cycle_id", mcp.Required(), mcp.Description("ID of the cycle")),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum(actionComplete, actionArchive),
			mcp.Description("complete (requires decision quality) or archive"),
		),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("proact.status",
		mcp.WithDescription("Get a decision cycle with its progress"),
		mcp.WithString("cycle_id", mcp.Required(), mcp.Description("ID of the cycle")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("proact.query",
		mcp.WithDescription("Query cycles, events, replayed state, or project a cycle with jq"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum(resourceCycles, resourceEvents, resourceReplay, resourceJQ),
			mcp.Description("Type of query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (session_id, status, parent_cycle_id, where, limit, offset, cycle_id, since, query)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("proact.diagram",
		mcp.WithDescription("Generate a diagram of a cycle's stage flow and branch lineage. Returns Mermaid flowchart syntax, ASCII art, SVG, or a PNG image"),
		mcp.WithString("cycle_id", mcp.Required(), mcp.Description("ID of the cycle")),
		mcp.WithString("format",
			mcp.Enum(string(engine.DiagramMermaid), string(engine.DiagramASCII), string(engine.DiagramSVG), string(engine.DiagramPNG)),
			mcp.Description("Output format (default: mermaid)"),
		),
	)
}
