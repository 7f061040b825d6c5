package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/akiviranta/tabdesk/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS presence (
	session_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	team_id TEXT NOT NULL DEFAULT '',
	last_heartbeat TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS teams_active (
	team_id TEXT PRIMARY KEY,
	active INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS objectives (
	team_id TEXT PRIMARY KEY,
	objective TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS todos (
	id INTEGER PRIMARY KEY,
	scope TEXT NOT NULL,
	team_id TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY,
	scope TEXT NOT NULL,
	team_id TEXT NOT NULL DEFAULT '',
	sender TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS modes (
	tab_key TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	team_id TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// indexes for common query patterns (scoped todo/message listing)
const indexes = `
CREATE INDEX IF NOT EXISTS idx_todos_scope_team ON todos(scope, team_id);
CREATE INDEX IF NOT EXISTS idx_messages_scope_team ON messages(scope, team_id);
`

// Store implements app.StateRepository and app.ModeStore using SQLite.
//
// The desk record (presence, teams_active, objectives, todos, messages, meta)
// is loaded and saved whole. The modes table is deliberately outside that
// cycle: mode records are per-tab and written synchronously on transitions,
// so a whole-record Save must not wipe them.
type Store struct {
	db *sql.DB
}

// New opens the SQLite database at path (creating parent dirs and schema).
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	if _, err := db.Exec(indexes); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite indexes: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection. Call on shutdown for clean exit.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Load implements app.StateRepository. Malformed rows (unparseable timestamps,
// unknown modes) are skipped rather than failing the whole load: a partially
// corrupt record is worth more than no record, and skipped presence entries
// re-publish themselves within one heartbeat interval anyway.
func (s *Store) Load() (*domain.DeskState, error) {
	state := domain.NewDeskState()

	rows, err := s.db.Query("SELECT session_id, mode, team_id, last_heartbeat FROM presence")
	if err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}
	for rows.Next() {
		var e domain.PresenceEntry
		var lh string
		if err := rows.Scan(&e.SessionID, &e.Mode, &e.TeamID, &lh); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if !e.Mode.Valid() {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, lh)
		if err != nil {
			continue
		}
		e.LastHeartbeat = t
		state.Presence[e.SessionID] = &e
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("presence iteration: %w", err)
	}

	rows, err = s.db.Query("SELECT team_id, active FROM teams_active")
	if err != nil {
		return nil, fmt.Errorf("teams_active: %w", err)
	}
	for rows.Next() {
		var teamID string
		var active int
		if err := rows.Scan(&teamID, &active); err != nil {
			_ = rows.Close()
			return nil, err
		}
		state.TeamsActive[teamID] = active != 0
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("teams_active iteration: %w", err)
	}

	rows, err = s.db.Query("SELECT team_id, objective FROM objectives")
	if err != nil {
		return nil, fmt.Errorf("objectives: %w", err)
	}
	for rows.Next() {
		var teamID, objective string
		if err := rows.Scan(&teamID, &objective); err != nil {
			_ = rows.Close()
			return nil, err
		}
		state.Objectives[teamID] = objective
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("objectives iteration: %w", err)
	}

	rows, err = s.db.Query("SELECT id, scope, team_id, text, completed, created_at FROM todos ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("todos: %w", err)
	}
	for rows.Next() {
		var item domain.TodoItem
		var ca string
		var completed int
		if err := rows.Scan(&item.ID, &item.Scope, &item.TeamID, &item.Text, &completed, &ca); err != nil {
			_ = rows.Close()
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ca)
		if err != nil {
			continue
		}
		item.CreatedAt = t
		item.Completed = completed != 0
		state.Todos = append(state.Todos, item)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("todos iteration: %w", err)
	}

	rows, err = s.db.Query("SELECT id, scope, team_id, sender, content, timestamp FROM messages ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	for rows.Next() {
		var m domain.ChatMessage
		var ts string
		if err := rows.Scan(&m.ID, &m.Scope, &m.TeamID, &m.From, &m.Content, &ts); err != nil {
			_ = rows.Close()
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			continue
		}
		m.Timestamp = t
		state.Messages = append(state.Messages, m)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messages iteration: %w", err)
	}

	rows, err = s.db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			_ = rows.Close()
			return nil, err
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			continue
		}
		switch key {
		case "next_todo_id":
			state.NextTodoID = n
		case "next_msg_id":
			state.NextMsgID = n
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("meta iteration: %w", err)
	}

	// Self-healing ID reconciliation. The counters in the meta table can
	// drift out of sync with actual rows after crashes or partial saves, so
	// they are raised to max row ID + 1 on every load.
	for _, item := range state.Todos {
		if item.ID >= state.NextTodoID {
			state.NextTodoID = item.ID + 1
		}
	}
	for _, m := range state.Messages {
		if m.ID >= state.NextMsgID {
			state.NextMsgID = m.ID + 1
		}
	}

	return state, nil
}

// Save implements app.StateRepository. The whole record is replaced in one
// transaction. The modes table is not touched here; see SaveMode.
func (s *Store) Save(state *domain.DeskState) error {
	if state == nil {
		return fmt.Errorf("state is nil")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range []string{"presence", "teams_active", "objectives", "todos", "messages", "meta"} {
		if _, err := tx.Exec("DELETE FROM " + t); err != nil {
			return err
		}
	}

	meta := map[string]string{
		"next_todo_id": fmt.Sprintf("%d", state.NextTodoID),
		"next_msg_id":  fmt.Sprintf("%d", state.NextMsgID),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return err
		}
	}

	for _, e := range state.Presence {
		if e == nil {
			continue
		}
		if _, err := tx.Exec("INSERT INTO presence (session_id, mode, team_id, last_heartbeat) VALUES (?, ?, ?, ?)",
			e.SessionID, string(e.Mode), e.TeamID, e.LastHeartbeat.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}

	for teamID, active := range state.TeamsActive {
		flag := 0
		if active {
			flag = 1
		}
		if _, err := tx.Exec("INSERT INTO teams_active (team_id, active) VALUES (?, ?)", teamID, flag); err != nil {
			return err
		}
	}

	for teamID, objective := range state.Objectives {
		if _, err := tx.Exec("INSERT INTO objectives (team_id, objective) VALUES (?, ?)", teamID, objective); err != nil {
			return err
		}
	}

	for _, item := range state.Todos {
		completed := 0
		if item.Completed {
			completed = 1
		}
		if _, err := tx.Exec("INSERT INTO todos (id, scope, team_id, text, completed, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			item.ID, string(item.Scope), item.TeamID, item.Text, completed, item.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}

	for _, m := range state.Messages {
		if _, err := tx.Exec("INSERT INTO messages (id, scope, team_id, sender, content, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
			m.ID, string(m.Scope), m.TeamID, m.From, m.Content, m.Timestamp.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadMode implements app.ModeStore.
func (s *Store) LoadMode(tabKey string) (domain.Mode, string, bool, error) {
	var mode, teamID string
	err := s.db.QueryRow("SELECT mode, team_id FROM modes WHERE tab_key = ?", tabKey).Scan(&mode, &teamID)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("load mode: %w", err)
	}
	return domain.Mode(mode), teamID, true, nil
}

// SaveMode implements app.ModeStore. Upserts the per-tab mode record.
func (s *Store) SaveMode(tabKey string, mode domain.Mode, teamID string) error {
	_, err := s.db.Exec("INSERT INTO modes (tab_key, mode, team_id) VALUES (?, ?, ?) ON CONFLICT(tab_key) DO UPDATE SET mode = excluded.mode, team_id = excluded.team_id",
		tabKey, string(mode), teamID)
	if err != nil {
		return fmt.Errorf("save mode: %w", err)
	}
	return nil
}
