package deskmode

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/akiviranta/tabdesk/internal/domain"
)

// registerCurrentMode registers the current_mode tool.
func registerCurrentMode(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("current_mode",
			mcp.WithDescription(
				"Get this tab's current mode (ADMIN or TEAM) and, in TEAM mode, the active team. "+
					"Call this first: it also registers the tab in the shared presence record."),
			mcp.WithString("tab_key", mcp.Description("Stable tab identifier for restoring a persisted mode across reconnects (optional)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			tabKey, _ := args["tab_key"].(string)

			tab, err := resolveTab(ctx, d, tabKey)
			if err != nil {
				return nil, err
			}
			mode, teamID := tab.Session.CurrentMode()
			if mode == domain.ModeTeam {
				return mcp.NewToolResultText(fmt.Sprintf("Mode: TEAM (team=%s, session=%s)", teamID, tab.Session.SessionID())), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Mode: ADMIN (session=%s)", tab.Session.SessionID())), nil
		},
	)
}

// registerRequestTeamMode registers the request_team_mode tool.
func registerRequestTeamMode(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("request_team_mode",
			mcp.WithDescription(
				"Switch this tab to TEAM mode for a team. No PIN is required; this is a privilege downgrade. "+
					"The tab's presence entry and ledger scope follow the new mode from the next heartbeat."),
			mcp.WithString("team_id", mcp.Required(), mcp.Description("Team to enter (must exist in the configured catalog)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamID, err := requireString(args, "team_id")
			if err != nil {
				return nil, err
			}

			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			if err := tab.Session.EnterTeamMode(teamID); err != nil {
				return nil, err
			}
			// Publish the mode change immediately instead of waiting a tick.
			tab.Agent.TickOnce()

			d.Logger.Printf("Session %s entered TEAM mode (team=%s)", tab.Session.SessionID(), teamID)
			return mcp.NewToolResultText(fmt.Sprintf("Now in TEAM mode for %s", teamID)), nil
		},
	)
}

// registerRequestAdminMode registers the request_admin_mode tool.
func registerRequestAdminMode(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("request_admin_mode",
			mcp.WithDescription(
				"Elevate this tab back to ADMIN mode. Requires the admin PIN. "+
					"A wrong PIN starts a cooldown during which further attempts are rejected without being checked."),
			mcp.WithString("pin", mcp.Required(), mcp.Description("Admin PIN")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			pin, err := requireString(args, "pin")
			if err != nil {
				return nil, err
			}

			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			ok, err := tab.Session.EnterAdminMode(pin)
			if !ok {
				switch {
				case errors.Is(err, domain.ErrPINCooldown):
					return mcp.NewToolResultText(fmt.Sprintf("Denied: cooldown active, retry after %s", d.Svc.Policy().PINCooldown())), nil
				case errors.Is(err, domain.ErrPINMismatch):
					d.Logger.Printf("Session %s: admin PIN mismatch", tab.Session.SessionID())
					return mcp.NewToolResultText("Denied: wrong PIN"), nil
				default:
					return nil, err
				}
			}
			if err != nil {
				// Transition happened but the sticky record write failed.
				d.Logger.Printf("Session %s: admin mode persisted with error: %v", tab.Session.SessionID(), err)
			}
			tab.Agent.TickOnce()

			d.Logger.Printf("Session %s entered ADMIN mode", tab.Session.SessionID())
			return mcp.NewToolResultText("Now in ADMIN mode"), nil
		},
	)
}
