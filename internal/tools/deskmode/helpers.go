package deskmode

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/akiviranta/tabdesk/internal/app"
	"github.com/akiviranta/tabdesk/internal/domain"
)

// resolveTab returns the Tab bound to the calling MCP client session,
// creating one on first use. The new tab's session restores its sticky mode
// under tabKey when given; otherwise the client session id is used, which
// means a reconnecting client gets a fresh ADMIN session.
//
// Creating a tab starts its heartbeat agent, so the tab shows up in the
// shared presence record within one tick.
func resolveTab(ctx context.Context, d Deps, tabKey string) (*app.Tab, error) {
	cs := server.ClientSessionFromContext(ctx)
	if cs == nil {
		return nil, fmt.Errorf("no client session in context")
	}
	sid := cs.SessionID()
	d.Registry.Touch(sid)

	if tab := d.Registry.Lookup(sid); tab != nil {
		return tab, nil
	}

	if tabKey == "" {
		tabKey = sid
	}
	session := app.NewSession(tabKey, d.Svc.Policy(), d.Store, d.Verifier, d.Logger)
	agent := app.NewHeartbeatAgent(d.Svc, session, d.Logger)
	go agent.Start(context.Background())

	tab := &app.Tab{Session: session, Agent: agent}
	if old := d.Registry.Attach(sid, tab); old != nil && old.Agent != nil {
		go old.Agent.Stop()
	}
	d.Logger.Printf("Tab attached: client=%s session=%s", sid, session.SessionID())
	return tab, nil
}

// scopeFor maps a session's mode to its ledger partition.
func scopeFor(session *app.Session) (domain.Scope, string) {
	mode, teamID := session.CurrentMode()
	if mode == domain.ModeTeam {
		return domain.ScopeTeam, teamID
	}
	return domain.ScopeAdmin, ""
}

// requireString extracts a non-empty string from args by key.
func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// requireFloat64 extracts a float64 from args by key. Returns a clear error
// distinguishing "missing" from "wrong type" and is safe against nil values.
func requireFloat64(args map[string]any, key string) (float64, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
	return f, nil
}

// optionalFloat64 extracts a float64 from args by key, returning the fallback if not present.
func optionalFloat64(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}
