package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProactServer(t *testing.T) {
	s := NewProactServer(ServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.notifier)
	assert.NotNil(t, s.sessions)
}

func TestToolRegistration(t *testing.T) {
	s := NewProactServer(ServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 7)

	expectedTools := []string{
		"proact.create",
		"proact.component",
		"proact.branch",
		"proact.lifecycle",
		"proact.status",
		"proact.query",
		"proact.diagram",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"create", "proact.create", "Create a new decision cycle"},
		{"component", "proact.component", "Operate on one stage of a decision cycle"},
		{"branch", "proact.branch", "Fork a new cycle at a started stage to explore an alternative path"},
		{"lifecycle", "proact.lifecycle", "Complete or archive a decision cycle"},
		{"status", "proact.status", "Get a decision cycle with its progress"},
		{"query", "proact.query", "Query cycles, events, replayed state, or project a cycle with jq"},
	}

	s := NewProactServer(ServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}

func TestComponentNames(t *testing.T) {
	assert.Len(t, componentNames(), 9)
	assert.Equal(t, "issue_raising", componentNames()[0])
	assert.Equal(t, "notes_next_steps", componentNames()[8])
}
