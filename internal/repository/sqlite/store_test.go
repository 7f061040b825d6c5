package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/akiviranta/tabdesk/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "state.sqlite"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_roundtrip(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	state := domain.NewDeskState()
	state.Presence["sid-1"] = &domain.PresenceEntry{
		SessionID: "sid-1", Mode: domain.ModeTeam, TeamID: "sales", LastHeartbeat: now,
	}
	state.Presence["sid-2"] = &domain.PresenceEntry{
		SessionID: "sid-2", Mode: domain.ModeAdmin, LastHeartbeat: now.Add(-time.Second),
	}
	state.TeamsActive["sales"] = true
	state.TeamsActive["support"] = false
	state.Objectives[""] = "ship it"
	state.Objectives["sales"] = "close deals"
	state.Todos = append(state.Todos, domain.TodoItem{
		ID: 1, Scope: domain.ScopeAdmin, Text: "review", Completed: true, CreatedAt: now,
	})
	state.Messages = append(state.Messages, domain.ChatMessage{
		ID: 1, Scope: domain.ScopeTeam, TeamID: "sales", From: "alice", Content: "hi", Timestamp: now,
	})
	state.NextTodoID = 2
	state.NextMsgID = 2

	if err := s.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got.Presence) != 2 {
		t.Fatalf("Presence count = %d, want 2", len(got.Presence))
	}
	e := got.Presence["sid-1"]
	if e == nil || e.Mode != domain.ModeTeam || e.TeamID != "sales" {
		t.Errorf("sid-1 entry = %+v", e)
	}
	if !e.LastHeartbeat.Equal(now) {
		t.Errorf("LastHeartbeat = %v, want %v", e.LastHeartbeat, now)
	}
	if !got.TeamsActive["sales"] || got.TeamsActive["support"] {
		t.Errorf("TeamsActive = %v", got.TeamsActive)
	}
	if got.Objectives[""] != "ship it" || got.Objectives["sales"] != "close deals" {
		t.Errorf("Objectives = %v", got.Objectives)
	}
	if len(got.Todos) != 1 || !got.Todos[0].Completed || got.Todos[0].Scope != domain.ScopeAdmin {
		t.Errorf("Todos = %+v", got.Todos)
	}
	if len(got.Messages) != 1 || got.Messages[0].From != "alice" || got.Messages[0].TeamID != "sales" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if got.NextTodoID != 2 || got.NextMsgID != 2 {
		t.Errorf("Next IDs = %d/%d, want 2/2", got.NextTodoID, got.NextMsgID)
	}
}

func TestStore_loadEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Presence) != 0 || len(got.Todos) != 0 {
		t.Error("fresh store should load an empty state")
	}
	if got.NextTodoID != 1 || got.NextMsgID != 1 {
		t.Errorf("fresh Next IDs = %d/%d, want 1/1", got.NextTodoID, got.NextMsgID)
	}
}

func TestStore_saveReplacesRecord(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	state := domain.NewDeskState()
	state.Presence["old"] = &domain.PresenceEntry{SessionID: "old", Mode: domain.ModeAdmin, LastHeartbeat: now}
	if err := s.Save(state); err != nil {
		t.Fatal(err)
	}

	state = domain.NewDeskState()
	state.Presence["new"] = &domain.PresenceEntry{SessionID: "new", Mode: domain.ModeAdmin, LastHeartbeat: now}
	if err := s.Save(state); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Presence["old"]; ok {
		t.Error("save must replace the whole record")
	}
	if _, ok := got.Presence["new"]; !ok {
		t.Error("latest record should be present")
	}
}

func TestStore_loadSkipsMalformedRows(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	state := domain.NewDeskState()
	state.Presence["good"] = &domain.PresenceEntry{SessionID: "good", Mode: domain.ModeAdmin, LastHeartbeat: now}
	if err := s.Save(state); err != nil {
		t.Fatal(err)
	}

	// Corrupt rows written by a buggy or foreign writer.
	if _, err := s.db.Exec("INSERT INTO presence (session_id, mode, team_id, last_heartbeat) VALUES ('bad-ts', 'ADMIN', '', 'not-a-time')"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("INSERT INTO presence (session_id, mode, team_id, last_heartbeat) VALUES ('bad-mode', 'WAT', '', ?)", now.Format(time.RFC3339Nano)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load with malformed rows: %v", err)
	}
	if len(got.Presence) != 1 {
		t.Errorf("Presence count = %d, want only the good row", len(got.Presence))
	}
	if _, ok := got.Presence["good"]; !ok {
		t.Error("valid row should survive malformed neighbors")
	}
}

func TestStore_idReconciliation(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	state := domain.NewDeskState()
	state.Todos = append(state.Todos, domain.TodoItem{ID: 7, Scope: domain.ScopeAdmin, Text: "x", CreatedAt: now})
	state.Messages = append(state.Messages, domain.ChatMessage{ID: 12, Scope: domain.ScopeAdmin, From: "a", Content: "x", Timestamp: now})
	// Deliberately stale counters.
	state.NextTodoID = 1
	state.NextMsgID = 1
	if err := s.Save(state); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.NextTodoID != 8 {
		t.Errorf("NextTodoID = %d, want 8", got.NextTodoID)
	}
	if got.NextMsgID != 13 {
		t.Errorf("NextMsgID = %d, want 13", got.NextMsgID)
	}
}

func TestStore_countersSurviveEmptyTables(t *testing.T) {
	s := newTestStore(t)

	// All todos were pruned but the counter must not rewind: stale clients may
	// still hold the old IDs.
	state := domain.NewDeskState()
	state.NextTodoID = 5
	state.NextMsgID = 9
	if err := s.Save(state); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.NextTodoID != 5 || got.NextMsgID != 9 {
		t.Errorf("counters = %d/%d, want 5/9", got.NextTodoID, got.NextMsgID)
	}
}

func TestStore_modeRoundtrip(t *testing.T) {
	s := newTestStore(t)

	if _, _, ok, err := s.LoadMode("tab-1"); err != nil || ok {
		t.Fatalf("LoadMode(missing) = ok=%t err=%v, want absent", ok, err)
	}

	if err := s.SaveMode("tab-1", domain.ModeTeam, "sales"); err != nil {
		t.Fatalf("SaveMode: %v", err)
	}
	mode, teamID, ok, err := s.LoadMode("tab-1")
	if err != nil || !ok || mode != domain.ModeTeam || teamID != "sales" {
		t.Errorf("LoadMode = %s/%q ok=%t err=%v, want TEAM/sales", mode, teamID, ok, err)
	}

	// Upsert.
	if err := s.SaveMode("tab-1", domain.ModeAdmin, ""); err != nil {
		t.Fatal(err)
	}
	mode, teamID, ok, _ = s.LoadMode("tab-1")
	if !ok || mode != domain.ModeAdmin || teamID != "" {
		t.Errorf("after upsert LoadMode = %s/%q, want ADMIN", mode, teamID)
	}
}

func TestStore_saveKeepsModes(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveMode("tab-1", domain.ModeTeam, "content"); err != nil {
		t.Fatal(err)
	}

	// A whole-record save must not wipe per-tab mode records.
	if err := s.Save(domain.NewDeskState()); err != nil {
		t.Fatal(err)
	}

	mode, teamID, ok, err := s.LoadMode("tab-1")
	if err != nil || !ok || mode != domain.ModeTeam || teamID != "content" {
		t.Errorf("mode record lost by Save: %s/%q ok=%t err=%v", mode, teamID, ok, err)
	}
}
