package deskmode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/akiviranta/tabdesk/internal/app"
	"github.com/akiviranta/tabdesk/internal/domain"
)

// registerOnlineTeams registers the online_teams tool.
func registerOnlineTeams(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("online_teams",
			mcp.WithDescription(
				"List teams with at least one tab currently in TEAM mode, derived from the live presence record. "+
					"Also shows each team's active flag and total connected tabs."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			// Fresh tick so the answer reflects a just-pruned record.
			tab.Agent.TickOnce()

			catalog := d.Svc.Policy().Teams()
			ttl := d.Svc.Policy().PresenceTTL()
			var result string
			if err := d.Svc.Query(func(state *domain.DeskState) error {
				now := time.Now()
				app.PrunePresence(state, now, ttl)
				online := app.OnlineTeams(state, catalog)

				var buf strings.Builder
				fmt.Fprintf(&buf, "Connected tabs: %d\n", len(state.Presence))
				buf.WriteString("Teams:\n")
				for _, t := range catalog {
					status := "offline"
					for _, o := range online {
						if o.ID == t.ID {
							status = "online"
							break
						}
					}
					active := "inactive"
					if state.TeamsActive[t.ID] {
						active = "active"
					}
					fmt.Fprintf(&buf, "  %s (%s): %s, %s\n", t.Name, t.ID, status, active)
				}
				result = buf.String()
				return nil
			}); err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(result), nil
		},
	)
}

// registerSetTeamActive registers the set_team_active tool.
func registerSetTeamActive(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("set_team_active",
			mcp.WithDescription(
				"Enable or disable a team (ADMIN mode only). An inactive team's tabs are denied page access "+
					"by the gate until the team is re-enabled."),
			mcp.WithString("team_id", mcp.Required(), mcp.Description("Team to flag")),
			mcp.WithBoolean("active", mcp.Required(), mcp.Description("true to activate, false to deactivate")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamID, err := requireString(args, "team_id")
			if err != nil {
				return nil, err
			}
			active, ok := args["active"].(bool)
			if !ok {
				return nil, fmt.Errorf("active is required")
			}

			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			if mode, _ := tab.Session.CurrentMode(); mode != domain.ModeAdmin {
				return nil, fmt.Errorf("set_team_active requires ADMIN mode")
			}
			if _, known := d.Svc.Policy().TeamByID(teamID); !known {
				return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTeam, teamID)
			}

			if err := d.Svc.Run(func(state *domain.DeskState) error {
				state.TeamsActive[teamID] = active
				return nil
			}); err != nil {
				return nil, err
			}

			d.Logger.Printf("Team %s set active=%t by session %s", teamID, active, tab.Session.SessionID())
			return mcp.NewToolResultText(fmt.Sprintf("Team %s is now %s", teamID, map[bool]string{true: "active", false: "inactive"}[active])), nil
		},
	)
}
