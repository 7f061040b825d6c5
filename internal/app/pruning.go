package app

import (
	"time"

	"github.com/akiviranta/tabdesk/internal/domain"
)

// PrunePresence removes presence entries whose LastHeartbeat is older than ttl
// relative to now. Returns the number pruned. After a prune every remaining
// entry satisfies now.Sub(LastHeartbeat) < ttl.
func PrunePresence(state *domain.DeskState, now time.Time, ttl time.Duration) int {
	if state == nil || len(state.Presence) == 0 {
		return 0
	}
	pruned := 0
	for id, e := range state.Presence {
		if e == nil || now.Sub(e.LastHeartbeat) >= ttl {
			delete(state.Presence, id)
			pruned++
		}
	}
	return pruned
}

// OnlineTeams returns the catalog teams with at least one live TEAM-mode
// presence entry, in catalog order. Entries naming a team outside the catalog
// are ignored.
func OnlineTeams(state *domain.DeskState, catalog []domain.Team) []domain.Team {
	if state == nil || len(state.Presence) == 0 {
		return nil
	}
	live := make(map[string]bool)
	for _, e := range state.Presence {
		if e != nil && e.Mode == domain.ModeTeam && e.TeamID != "" {
			live[e.TeamID] = true
		}
	}
	var teams []domain.Team
	for _, t := range catalog {
		if live[t.ID] {
			teams = append(teams, t)
		}
	}
	return teams
}

// PruneMessages removes old chat messages by TTL and max count. Returns number pruned.
func PruneMessages(state *domain.DeskState, maxCount, maxAgeDays int) int {
	if state == nil || len(state.Messages) == 0 {
		return 0
	}
	pruned := 0
	now := time.Now()
	if maxAgeDays > 0 {
		cutoff := now.AddDate(0, 0, -maxAgeDays)
		filtered := make([]domain.ChatMessage, 0, len(state.Messages))
		for _, msg := range state.Messages {
			if msg.Timestamp.After(cutoff) {
				filtered = append(filtered, msg)
			} else {
				pruned++
			}
		}
		state.Messages = filtered
	}
	if maxCount > 0 && len(state.Messages) > maxCount {
		excess := len(state.Messages) - maxCount
		state.Messages = state.Messages[excess:]
		pruned += excess
	}
	return pruned
}

// EnsureStateMaps initializes nil maps/slices on state for backward compatibility.
func EnsureStateMaps(state *domain.DeskState) {
	if state == nil {
		return
	}
	if state.Presence == nil {
		state.Presence = make(map[string]*domain.PresenceEntry)
	}
	if state.TeamsActive == nil {
		state.TeamsActive = make(map[string]bool)
	}
	if state.Objectives == nil {
		state.Objectives = make(map[string]string)
	}
	if state.Todos == nil {
		state.Todos = []domain.TodoItem{}
	}
	if state.Messages == nil {
		state.Messages = []domain.ChatMessage{}
	}
	if state.NextTodoID == 0 {
		state.NextTodoID = 1
	}
	if state.NextMsgID == 0 {
		state.NextMsgID = 1
	}
}

// EnsureTeamDefaults seeds TeamsActive for catalog teams not yet present,
// using each team's configured default. Existing flags are left alone; the
// active flag is admin-controlled runtime state.
func EnsureTeamDefaults(state *domain.DeskState, catalog []domain.Team) {
	if state == nil || state.TeamsActive == nil {
		return
	}
	for _, t := range catalog {
		if _, ok := state.TeamsActive[t.ID]; !ok {
			state.TeamsActive[t.ID] = t.DefaultActive
		}
	}
}
