package app

import (
	"sync"
	"time"
)

// Tab is one connected client's session plus its running heartbeat agent.
type Tab struct {
	Session *Session
	Agent   *HeartbeatAgent
}

// TabRegistry tracks connected MCP client sessions and their tabs. Multiple
// tabs can be active at once (SSE and Streamable HTTP).
type TabRegistry struct {
	mu           sync.RWMutex
	tabs         map[string]*Tab      // clientSessionID → tab
	lastActivity map[string]time.Time // clientSessionID → last tool call
}

// NewTabRegistry creates an empty registry.
func NewTabRegistry() *TabRegistry {
	return &TabRegistry{
		tabs:         make(map[string]*Tab),
		lastActivity: make(map[string]time.Time),
	}
}

// Attach binds a tab to a client session id. A previous tab under the same id
// is returned so the caller can stop its heartbeat agent.
func (r *TabRegistry) Attach(clientSessionID string, tab *Tab) *Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.tabs[clientSessionID]
	r.tabs[clientSessionID] = tab
	r.lastActivity[clientSessionID] = time.Now()
	return old
}

// Lookup returns the tab for a client session id, or nil if unknown.
func (r *TabRegistry) Lookup(clientSessionID string) *Tab {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tabs[clientSessionID]
}

// Remove unregisters a tab (e.g. on disconnect) and returns it, or nil.
func (r *TabRegistry) Remove(clientSessionID string) *Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	tab := r.tabs[clientSessionID]
	delete(r.tabs, clientSessionID)
	delete(r.lastActivity, clientSessionID)
	return tab
}

// Touch records activity for a client session (call on each tool invocation).
func (r *TabRegistry) Touch(clientSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tabs[clientSessionID]; ok {
		r.lastActivity[clientSessionID] = time.Now()
	}
}

// LastActivity returns the last tool call time for a client session.
// Returns zero time if the session is unknown.
func (r *TabRegistry) LastActivity(clientSessionID string) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActivity[clientSessionID]
}

// Count returns the number of connected tabs.
func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// ConnectedIDs returns the client session ids of all connected tabs.
func (r *TabRegistry) ConnectedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tabs))
	for id := range r.tabs {
		ids = append(ids, id)
	}
	return ids
}

// StopAll stops every tab's heartbeat agent. Called during server shutdown so
// each tab removes its presence entry before the process exits.
func (r *TabRegistry) StopAll() {
	r.mu.Lock()
	tabs := make([]*Tab, 0, len(r.tabs))
	for id, t := range r.tabs {
		tabs = append(tabs, t)
		delete(r.tabs, id)
		delete(r.lastActivity, id)
	}
	r.mu.Unlock()
	for _, t := range tabs {
		if t != nil && t.Agent != nil {
			t.Agent.Stop()
		}
	}
}
