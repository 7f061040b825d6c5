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

// registerAddTodo registers the add_todo tool.
func registerAddTodo(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("add_todo",
			mcp.WithDescription(
				"Add a todo item to this tab's ledger. ADMIN tabs write to the admin list; "+
					"TEAM tabs write to their own team's list. The lists never mix."),
			mcp.WithString("text", mcp.Required(), mcp.Description("Todo text")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			text, err := requireString(args, "text")
			if err != nil {
				return nil, err
			}

			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			scope, teamID := scopeFor(tab.Session)

			var item domain.TodoItem
			if err := d.Svc.Run(func(state *domain.DeskState) error {
				item = app.AddTodo(state, scope, teamID, text, time.Now())
				return nil
			}); err != nil {
				return nil, err
			}

			d.Logger.Printf("Todo #%d added (scope=%s team=%s)", item.ID, scope, teamID)
			return mcp.NewToolResultText(fmt.Sprintf("Todo #%d added: %s", item.ID, app.Truncate(text, 80))), nil
		},
	)
}

// registerToggleTodo registers the toggle_todo tool.
func registerToggleTodo(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("toggle_todo",
			mcp.WithDescription("Toggle a todo's completed flag. Only todos in this tab's own scope can be toggled."),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Todo ID")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			idF, err := requireFloat64(args, "id")
			if err != nil {
				return nil, err
			}
			id := int(idF)

			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			scope, teamID := scopeFor(tab.Session)

			toggled := false
			if err := d.Svc.Run(func(state *domain.DeskState) error {
				toggled = app.ToggleTodo(state, scope, teamID, id)
				return nil
			}); err != nil {
				return nil, err
			}
			if !toggled {
				return nil, fmt.Errorf("no todo #%d in current scope", id)
			}
			return mcp.NewToolResultText(fmt.Sprintf("Todo #%d toggled", id)), nil
		},
	)
}

// registerListTodos registers the list_todos tool.
func registerListTodos(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("list_todos",
			mcp.WithDescription("List the todos in this tab's scope, oldest first."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			scope, teamID := scopeFor(tab.Session)

			var result string
			if err := d.Svc.Query(func(state *domain.DeskState) error {
				items := app.TodosForScope(state, scope, teamID)
				if len(items) == 0 {
					result = "No todos"
					return nil
				}
				var buf strings.Builder
				for _, item := range items {
					mark := " "
					if item.Completed {
						mark = "x"
					}
					fmt.Fprintf(&buf, "[%s] #%d %s\n", mark, item.ID, item.Text)
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

// registerSendMessage registers the send_message tool.
func registerSendMessage(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Post a chat message into this tab's scope (admin room or own team room)."),
			mcp.WithString("content", mcp.Required(), mcp.Description("Message content")),
			mcp.WithString("from", mcp.Description("Display name of the sender (defaults to the session id)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			content, err := requireString(args, "content")
			if err != nil {
				return nil, err
			}

			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			from, _ := args["from"].(string)
			if from == "" {
				from = app.Truncate(tab.Session.SessionID(), 8)
			}
			scope, teamID := scopeFor(tab.Session)
			pol := d.Svc.Policy()

			var msg domain.ChatMessage
			if err := d.Svc.Run(func(state *domain.DeskState) error {
				msg = app.AppendMessage(state, scope, teamID, from, content, time.Now())
				app.PruneMessages(state, pol.MessageRetentionMax(), pol.MessageRetentionDays())
				return nil
			}); err != nil {
				return nil, err
			}

			d.Logger.Printf("Message #%d from %s (scope=%s team=%s)", msg.ID, from, scope, teamID)
			return mcp.NewToolResultText(fmt.Sprintf("Message #%d sent", msg.ID)), nil
		},
	)
}

// registerReadMessages registers the read_messages tool.
func registerReadMessages(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("read_messages",
			mcp.WithDescription("Read recent chat messages in this tab's scope, oldest first."),
			mcp.WithNumber("limit", mcp.Description("Max number of messages to return (default 20)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			limit := int(optionalFloat64(args, "limit", 20))

			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			scope, teamID := scopeFor(tab.Session)

			var result string
			if err := d.Svc.Query(func(state *domain.DeskState) error {
				msgs := app.MessagesForScope(state, scope, teamID, limit)
				if len(msgs) == 0 {
					result = "No messages"
					return nil
				}
				var buf strings.Builder
				for _, m := range msgs {
					fmt.Fprintf(&buf, "[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.From, m.Content)
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

// registerSetObjective registers the set_objective tool.
func registerSetObjective(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("set_objective",
			mcp.WithDescription(
				"Set the objective for this tab's scope. A TEAM tab sets its own team's objective; "+
					"an ADMIN tab sets the admin objective, or any team's via team_id. Empty text clears it."),
			mcp.WithString("objective", mcp.Description("Objective text (empty clears)")),
			mcp.WithString("team_id", mcp.Description("Target team (ADMIN mode only; defaults to the admin objective)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			objective, _ := args["objective"].(string)
			target, _ := args["team_id"].(string)

			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			mode, teamID := tab.Session.CurrentMode()
			switch mode {
			case domain.ModeTeam:
				if target != "" && target != teamID {
					return nil, fmt.Errorf("TEAM mode can only set its own objective")
				}
				target = teamID
			case domain.ModeAdmin:
				if target != "" {
					if _, known := d.Svc.Policy().TeamByID(target); !known {
						return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTeam, target)
					}
				}
			}

			if err := d.Svc.Run(func(state *domain.DeskState) error {
				app.SetObjective(state, target, objective)
				return nil
			}); err != nil {
				return nil, err
			}

			if objective == "" {
				return mcp.NewToolResultText("Objective cleared"), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Objective set: %s", app.Truncate(objective, 80))), nil
		},
	)
}

// registerGetObjective registers the get_objective tool.
func registerGetObjective(s *server.MCPServer, d Deps) {
	s.AddTool(
		mcp.NewTool("get_objective",
			mcp.WithDescription("Get the objective for this tab's scope."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tab, err := resolveTab(ctx, d, "")
			if err != nil {
				return nil, err
			}
			_, teamID := scopeFor(tab.Session)

			var result string
			if err := d.Svc.Query(func(state *domain.DeskState) error {
				result = app.ObjectiveFor(state, teamID)
				return nil
			}); err != nil {
				return nil, err
			}
			if result == "" {
				return mcp.NewToolResultText("No objective set"), nil
			}
			return mcp.NewToolResultText(result), nil
		},
	)
}
