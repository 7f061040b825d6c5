// Package dashboard provides a JSON API for monitoring the desk coordination
// state in real time.
package dashboard

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/akiviranta/tabdesk/internal/app"
	"github.com/akiviranta/tabdesk/internal/domain"
)

// StateSnapshot is the JSON response from /api/state.
type StateSnapshot struct {
	Timestamp     string            `json:"timestamp"`
	ConnectedTabs int               `json:"connected_tabs"`
	Tabs          []TabSnapshot     `json:"tabs"`
	Teams         []TeamSnapshot    `json:"teams"`
	Objectives    map[string]string `json:"objectives,omitempty"`
	Todos         []TodoSnapshot    `json:"todos,omitempty"`
	Messages      []MessageSnapshot `json:"messages,omitempty"`
}

// TabSnapshot is a per-presence-entry summary.
type TabSnapshot struct {
	SessionID     string `json:"session_id"`
	Mode          string `json:"mode"`
	TeamID        string `json:"team_id,omitempty"`
	LastHeartbeat string `json:"last_heartbeat"`
	Stale         bool   `json:"stale"`
}

// TeamSnapshot is a per-team summary.
type TeamSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PagePrefix string `json:"page_prefix"`
	Active     bool   `json:"active"`
	Online     bool   `json:"online"`
	TabCount   int    `json:"tab_count"`
}

// TodoSnapshot is a per-todo summary.
type TodoSnapshot struct {
	ID        int    `json:"id"`
	Scope     string `json:"scope"`
	TeamID    string `json:"team_id,omitempty"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Age       string `json:"age"`
}

// MessageSnapshot is a per-message summary.
type MessageSnapshot struct {
	ID      int    `json:"id"`
	Scope   string `json:"scope"`
	TeamID  string `json:"team_id,omitempty"`
	From    string `json:"from"`
	Content string `json:"content"`
	Age     string `json:"age"`
}

// Handler holds dependencies for dashboard HTTP handlers.
type Handler struct {
	svc      *app.DeskService
	registry *app.TabRegistry
}

// NewHandler creates a dashboard handler.
func NewHandler(svc *app.DeskService, registry *app.TabRegistry) *Handler {
	return &Handler{svc: svc, registry: registry}
}

// RegisterRoutes adds dashboard routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", h.handleAPIState)
	mux.HandleFunc("/api/teams/active", h.handleAPITeamsActive)
	mux.HandleFunc("/api/reset", h.handleAPIReset)
}

func (h *Handler) handleAPIState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache")

	now := time.Now()
	pol := h.svc.Policy()
	ttl := pol.PresenceTTL()
	catalog := pol.Teams()

	snap := StateSnapshot{
		Timestamp:     now.Format(time.RFC3339),
		ConnectedTabs: h.registry.Count(),
	}

	_ = h.svc.Query(func(state *domain.DeskState) error {
		tabsPerTeam := make(map[string]int)
		for _, e := range state.Presence {
			if e == nil {
				continue
			}
			stale := now.Sub(e.LastHeartbeat) >= ttl
			snap.Tabs = append(snap.Tabs, TabSnapshot{
				SessionID:     e.SessionID,
				Mode:          string(e.Mode),
				TeamID:        e.TeamID,
				LastHeartbeat: relTime(e.LastHeartbeat, now),
				Stale:         stale,
			})
			if !stale && e.Mode == domain.ModeTeam && e.TeamID != "" {
				tabsPerTeam[e.TeamID]++
			}
		}
		sort.Slice(snap.Tabs, func(i, j int) bool {
			return snap.Tabs[i].SessionID < snap.Tabs[j].SessionID
		})

		for _, t := range catalog {
			snap.Teams = append(snap.Teams, TeamSnapshot{
				ID:         t.ID,
				Name:       t.Name,
				PagePrefix: t.PagePrefix,
				Active:     state.TeamsActive[t.ID],
				Online:     tabsPerTeam[t.ID] > 0,
				TabCount:   tabsPerTeam[t.ID],
			})
		}

		if len(state.Objectives) > 0 {
			snap.Objectives = make(map[string]string, len(state.Objectives))
			for k, v := range state.Objectives {
				snap.Objectives[k] = v
			}
		}

		// Todos (most recent first, limit 50)
		start := 0
		if len(state.Todos) > 50 {
			start = len(state.Todos) - 50
		}
		for i := len(state.Todos) - 1; i >= start; i-- {
			t := state.Todos[i]
			snap.Todos = append(snap.Todos, TodoSnapshot{
				ID:        t.ID,
				Scope:     string(t.Scope),
				TeamID:    t.TeamID,
				Text:      truncate(t.Text, 120),
				Completed: t.Completed,
				Age:       relTime(t.CreatedAt, now),
			})
		}

		// Messages (most recent first, limit 30)
		msgStart := 0
		if len(state.Messages) > 30 {
			msgStart = len(state.Messages) - 30
		}
		for i := len(state.Messages) - 1; i >= msgStart; i-- {
			m := state.Messages[i]
			snap.Messages = append(snap.Messages, MessageSnapshot{
				ID:      m.ID,
				Scope:   string(m.Scope),
				TeamID:  m.TeamID,
				From:    m.From,
				Content: truncate(m.Content, 200),
				Age:     relTime(m.Timestamp, now),
			})
		}

		return nil
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(snap)
}

func (h *Handler) handleAPITeamsActive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"POST required"}`))
		return
	}

	var body struct {
		TeamID string `json:"team_id"`
		Active bool   `json:"active"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.TeamID == "" {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"team_id is required"}`))
		return
	}
	if _, ok := h.svc.Policy().TeamByID(body.TeamID); !ok {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unknown team"}`))
		return
	}

	err := h.svc.Run(func(state *domain.DeskState) error {
		state.TeamsActive[body.TeamID] = body.Active
		return nil
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"` + err.Error() + `"}`))
		return
	}

	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) handleAPIReset(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"POST required"}`))
		return
	}

	// Presence is kept by default: live tabs re-publish within a heartbeat
	// anyway, and dropping them just makes the dashboard flicker.
	keepPresence := r.URL.Query().Get("keep_presence") != "false"

	err := h.svc.Run(func(state *domain.DeskState) error {
		state.Todos = []domain.TodoItem{}
		state.Messages = []domain.ChatMessage{}
		state.Objectives = make(map[string]string)
		state.NextTodoID = 1
		state.NextMsgID = 1
		if !keepPresence {
			state.Presence = make(map[string]*domain.PresenceEntry)
		}
		return nil
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"` + err.Error() + `"}`))
		return
	}

	w.Write([]byte(`{"status":"ok","message":"Ledger has been reset"}`))
}

func relTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return itoa(int(d.Seconds())) + "s ago"
	case d < time.Hour:
		return itoa(int(d.Minutes())) + "m ago"
	case d < 24*time.Hour:
		return itoa(int(d.Hours())) + "h ago"
	default:
		return t.Format("Jan 2 15:04")
	}
}

func itoa(n int) string {
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 4)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
