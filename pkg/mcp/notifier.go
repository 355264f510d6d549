package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/proact/internal/streaming"
)

// notificationMethod is the MCP method used for cycle event pushes.
const notificationMethod = "notifications/message"

// ClientNotifier sends a notification to one MCP client session.
// Satisfied by *server.MCPServer.
type ClientNotifier interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// Notifier pushes cycle events to the MCP client that owns the decision session.
type Notifier struct {
	client   ClientNotifier
	sessions *SessionRegistry
	logger   *slog.Logger
}

// NewNotifier creates a notifier that pushes via the MCP server.
func NewNotifier(client ClientNotifier, sessions *SessionRegistry, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, sessions: sessions, logger: logger}
}

// Notify sends one event to its session's client.
// Best-effort: returns nil if no client is mapped to the session.
func (n *Notifier) Notify(_ context.Context, event streaming.StreamEvent) error {
	mcpSession, ok := n.sessions.SessionFor(event.SessionID)
	if !ok {
		return nil
	}
	err := n.client.SendNotificationToSpecificClient(mcpSession, notificationMethod, eventParams(event))
	if errors.Is(err, server.ErrSessionNotFound) {
		// Client went away between lookup and send.
		n.sessions.Remove(mcpSession)
		return nil
	}
	return err
}

// Forward subscribes to every event on hub and notifies until ctx is done.
func (n *Notifier) Forward(ctx context.Context, hub streaming.EventHub) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if err := n.Notify(ctx, event); err != nil {
				n.logger.Warn("cycle event notification failed",
					slog.String("cycle_id", event.CycleID),
					slog.String("event_type", event.EventType),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func eventParams(e streaming.StreamEvent) map[string]any {
	data := map[string]any{
		"cycle_id":   e.CycleID,
		"session_id": e.SessionID,
		"event_type": e.EventType,
		"sequence":   e.Sequence,
		"timestamp":  e.Timestamp,
	}
	if e.Component != "" {
		data["component"] = e.Component
	}
	if e.Payload != nil {
		data["payload"] = e.Payload
	}
	return map[string]any{"level": "info", "logger": "proact", "data": data}
}
