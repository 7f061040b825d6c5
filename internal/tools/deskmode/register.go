package deskmode

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/akiviranta/tabdesk/internal/app"
)

// Deps carries the shared dependencies every tool needs.
type Deps struct {
	Svc      *app.DeskService
	Store    app.ModeStore
	Registry *app.TabRegistry
	Gate     *app.Gate
	Verifier app.SecretVerifier
	Logger   *log.Logger
}

// Register registers the desk coordination tools with the mcp-go server.
func Register(s *server.MCPServer, d Deps) {
	if d.Gate == nil {
		d.Gate = app.NewGate(d.Svc.Policy().Teams())
	}
	if d.Verifier == nil {
		d.Verifier = app.StaticPIN(d.Svc.Policy().AdminPIN())
	}

	// Mode tools (3)
	registerCurrentMode(s, d)
	registerRequestTeamMode(s, d)
	registerRequestAdminMode(s, d)

	// Presence tools (2)
	registerOnlineTeams(s, d)
	registerSetTeamActive(s, d)

	// Access tool (1)
	registerCanAccess(s, d)

	// Ledger tools (7)
	registerAddTodo(s, d)
	registerToggleTodo(s, d)
	registerListTodos(s, d)
	registerSendMessage(s, d)
	registerReadMessages(s, d)
	registerSetObjective(s, d)
	registerGetObjective(s, d)
}
