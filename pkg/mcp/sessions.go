package mcp

import "sync"

// SessionRegistry maps decision session IDs to MCP session IDs.
// Populated when a tool call touches a cycle of that session.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // decision session → MCP session
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a decision session with an MCP session.
// A later registration wins (reconnect).
func (r *SessionRegistry) Register(sessionID, mcpSessionID string) {
	if sessionID == "" || mcpSessionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = mcpSessionID
}

// SessionFor returns the MCP session for a decision session, if connected.
func (r *SessionRegistry) SessionFor(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[sessionID]
	return sid, ok
}

// Remove deletes all mappings to the given MCP session.
// Called when a client disconnects.
func (r *SessionRegistry) Remove(mcpSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sid := range r.sessions {
		if sid == mcpSessionID {
			delete(r.sessions, id)
		}
	}
}

// Len returns the number of mapped decision sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
