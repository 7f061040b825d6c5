// Package domain holds desk coordination entities and aggregate state.
// It has no dependencies on other packages.
package domain

import "time"

// Mode is the operational role a tab is currently running under.
type Mode string

const (
	// ModeAdmin is the unrestricted mode.
	ModeAdmin Mode = "ADMIN"
	// ModeTeam is the sandboxed mode, scoped to a single team's pages.
	ModeTeam Mode = "TEAM"
)

// Valid reports whether m is a known mode value.
func (m Mode) Valid() bool {
	switch m {
	case ModeAdmin, ModeTeam:
		return true
	}
	return false
}

// Team is a static catalog entry. Teams are configuration, not runtime data;
// only their active flag and objective change while the server runs.
type Team struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PagePrefix    string `json:"page_prefix"`
	DefaultActive bool   `json:"default_active"`
}

// PresenceEntry is one tab's self-reported liveness record. It is created by
// the tab's first heartbeat tick, overwritten every tick by its owner, and
// never mutated by another tab.
type PresenceEntry struct {
	SessionID     string    `json:"id"`
	Mode          Mode      `json:"mode"`
	TeamID        string    `json:"team_id,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Scope partitions ledger records between the admin surface and a team.
type Scope string

const (
	ScopeAdmin Scope = "admin"
	ScopeTeam  Scope = "team"
)

// TodoItem is a flat todo record, scoped to admin or to one team.
// Append-only except for the Completed toggle.
type TodoItem struct {
	ID        int       `json:"id"`
	Scope     Scope     `json:"scope"`
	TeamID    string    `json:"team_id,omitempty"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is an append-only chat record, scoped like TodoItem.
type ChatMessage struct {
	ID        int       `json:"id"`
	Scope     Scope     `json:"scope"`
	TeamID    string    `json:"team_id,omitempty"`
	From      string    `json:"from"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DeskState is the aggregate shared state. The whole record is read, mutated,
// and written back on every state operation; each session owns exactly its own
// Presence key, and the prune protocol discards keys past the staleness TTL.
type DeskState struct {
	Presence    map[string]*PresenceEntry `json:"presence"`
	TeamsActive map[string]bool           `json:"teams_active"`
	Objectives  map[string]string         `json:"objectives"`
	Todos       []TodoItem                `json:"todos"`
	Messages    []ChatMessage             `json:"messages"`
	NextTodoID  int                       `json:"next_todo_id"`
	NextMsgID   int                       `json:"next_msg_id"`
}

// NewDeskState returns an empty DeskState with maps and IDs initialized.
func NewDeskState() *DeskState {
	return &DeskState{
		Presence:    make(map[string]*PresenceEntry),
		TeamsActive: make(map[string]bool),
		Objectives:  make(map[string]string),
		Todos:       []TodoItem{},
		Messages:    []ChatMessage{},
		NextTodoID:  1,
		NextMsgID:   1,
	}
}
