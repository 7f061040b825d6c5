package deskmode

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/akiviranta/tabdesk/internal/domain"
)

// registerCanAccess registers the can_access tool.
func registerCanAccess(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("can_access",
			mcp.WithDescription(
				"Check whether this tab may navigate to a page path in its current mode. "+
					"ADMIN tabs may go anywhere; TEAM tabs are restricted to their active team's page prefix."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Page path to check (e.g. /sales/leads)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			path, err := requireString(args, "path")
			if err != nil {
				return nil, err
			}

			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			mode, teamID := tab.Session.CurrentMode()

			allowed := false
			if err := d.Svc.Query(func(state *domain.DeskState) error {
				allowed = d.Gate.Allows(mode, teamID, path, state.TeamsActive)
				return nil
			}); err != nil {
				return nil, err
			}

			if allowed {
				return mcp.NewToolResultText(fmt.Sprintf("Allowed: %s", path)), nil
			}
			reason := "outside team scope"
			if mode == domain.ModeTeam {
				if _, known := d.Svc.Policy().TeamByID(teamID); !known {
					reason = "unknown team"
				}
			}
			return mcp.NewToolResultText(fmt.Sprintf("Denied: %s (%s)", path, reason)), nil
		},
	)
}
