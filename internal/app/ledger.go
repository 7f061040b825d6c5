package app

import (
	"time"

	"github.com/akiviranta/tabdesk/internal/domain"
)

// Ledger operations mutate the shared todo/chat/objective record. All of them
// are scope-partitioned: ADMIN entries carry ScopeAdmin and an empty team id,
// TEAM entries carry ScopeTeam plus the owning team. Callers derive the scope
// from the session's current mode so a tab only ever writes into its own lane.

// AddTodo appends a todo item in the given scope and returns it.
func AddTodo(state *domain.DeskState, scope domain.Scope, teamID, text string, now time.Time) domain.TodoItem {
	item := domain.TodoItem{
		ID:        state.NextTodoID,
		Scope:     scope,
		TeamID:    teamID,
		Text:      text,
		CreatedAt: now,
	}
	state.NextTodoID++
	state.Todos = append(state.Todos, item)
	return item
}

// ToggleTodo flips the completed flag of the todo with the given id, but only
// when the item is visible in the caller's scope. Returns false when no such
// item exists.
func ToggleTodo(state *domain.DeskState, scope domain.Scope, teamID string, id int) bool {
	for i := range state.Todos {
		t := &state.Todos[i]
		if t.ID == id && t.Scope == scope && t.TeamID == teamID {
			t.Completed = !t.Completed
			return true
		}
	}
	return false
}

// TodosForScope returns the todos visible in the given scope, oldest first.
func TodosForScope(state *domain.DeskState, scope domain.Scope, teamID string) []domain.TodoItem {
	var items []domain.TodoItem
	for _, t := range state.Todos {
		if t.Scope == scope && t.TeamID == teamID {
			items = append(items, t)
		}
	}
	return items
}

// AppendMessage appends a chat message in the given scope and returns it.
func AppendMessage(state *domain.DeskState, scope domain.Scope, teamID, from, content string, now time.Time) domain.ChatMessage {
	msg := domain.ChatMessage{
		ID:        state.NextMsgID,
		Scope:     scope,
		TeamID:    teamID,
		From:      from,
		Content:   content,
		Timestamp: now,
	}
	state.NextMsgID++
	state.Messages = append(state.Messages, msg)
	return msg
}

// MessagesForScope returns up to limit most recent messages in the given
// scope, oldest first. limit <= 0 means no limit.
func MessagesForScope(state *domain.DeskState, scope domain.Scope, teamID string, limit int) []domain.ChatMessage {
	var msgs []domain.ChatMessage
	for _, m := range state.Messages {
		if m.Scope == scope && m.TeamID == teamID {
			msgs = append(msgs, m)
		}
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

// SetObjective records the objective text for a scope. The admin objective is
// keyed under the empty team id; team objectives under their team id. An empty
// objective clears the entry.
func SetObjective(state *domain.DeskState, teamID, objective string) {
	if objective == "" {
		delete(state.Objectives, teamID)
		return
	}
	state.Objectives[teamID] = objective
}

// ObjectiveFor returns the objective for a scope, or "" when unset.
func ObjectiveFor(state *domain.DeskState, teamID string) string {
	return state.Objectives[teamID]
}
