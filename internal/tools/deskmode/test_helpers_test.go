package deskmode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/akiviranta/tabdesk/internal/app"
	"github.com/akiviranta/tabdesk/internal/domain"
)

// fakeSession is a minimal server.ClientSession for driving tools in tests.
type fakeSession struct {
	id          string
	notifCh     chan mcp.JSONRPCNotification
	initialized bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, notifCh: make(chan mcp.JSONRPCNotification, 16)}
}

func (f *fakeSession) SessionID() string { return f.id }
func (f *fakeSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return f.notifCh
}
func (f *fakeSession) Initialize()       { f.initialized = true }
func (f *fakeSession) Initialized() bool { return f.initialized }

// mockRepository implements app.StateRepository in memory.
type mockRepository struct {
	mu       sync.Mutex
	state    *domain.DeskState
	failLoad bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{state: domain.NewDeskState()}
}

func (m *mockRepository) Load() (*domain.DeskState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad {
		return nil, errors.New("load failed")
	}
	return m.state, nil
}

func (m *mockRepository) Save(state *domain.DeskState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

// mockModeStore implements app.ModeStore in memory.
type mockModeStore struct {
	mu    sync.Mutex
	modes map[string][2]string
}

func newMockModeStore() *mockModeStore {
	return &mockModeStore{modes: make(map[string][2]string)}
}

func (m *mockModeStore) LoadMode(tabKey string) (domain.Mode, string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.modes[tabKey]
	if !ok {
		return "", "", false, nil
	}
	return domain.Mode(rec[0]), rec[1], true, nil
}

func (m *mockModeStore) SaveMode(tabKey string, mode domain.Mode, teamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[tabKey] = [2]string{string(mode), teamID}
	return nil
}

// mockPolicy implements app.Policy. The heartbeat interval is deliberately huge
// so background agent loops never tick during a test; tools call TickOnce
// synchronously where freshness matters.
type mockPolicy struct {
	cooldown time.Duration
	teams    []domain.Team
}

func newMockPolicy() *mockPolicy {
	return &mockPolicy{
		cooldown: 2 * time.Second,
		teams: []domain.Team{
			{ID: "sales", Name: "Sales", PagePrefix: "/sales", DefaultActive: true},
			{ID: "content", Name: "Content", PagePrefix: "/content", DefaultActive: true},
			{ID: "support", Name: "Support", PagePrefix: "/support", DefaultActive: false},
		},
	}
}

func (p *mockPolicy) HeartbeatInterval() time.Duration { return time.Hour }
func (p *mockPolicy) PresenceTTL() time.Duration       { return 4 * time.Second }
func (p *mockPolicy) AdminPIN() string                 { return "1234" }
func (p *mockPolicy) PINCooldown() time.Duration       { return p.cooldown }
func (p *mockPolicy) MessageRetentionMax() int         { return 1000 }
func (p *mockPolicy) MessageRetentionDays() int        { return 30 }
func (p *mockPolicy) SignalFilePath() string           { return "" }
func (p *mockPolicy) Teams() []domain.Team             { return p.teams }

func (p *mockPolicy) TeamByID(id string) (domain.Team, bool) {
	for _, t := range p.teams {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Team{}, false
}

// harness bundles a test MCPServer with its backing mocks.
type harness struct {
	s     *server.MCPServer
	repo  *mockRepository
	store *mockModeStore
	pol   *mockPolicy
}

// newHarness creates an MCPServer with all desk tools registered over
// in-memory storage. Agents spawned by tool calls are stopped on cleanup.
func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := newMockRepository()
	store := newMockModeStore()
	pol := newMockPolicy()
	logger := log.New(io.Discard, "", 0)
	svc := app.NewDeskService(repo, pol, logger)
	registry := app.NewTabRegistry()

	s := server.NewMCPServer("test", "1.0.0")
	Register(s, Deps{
		Svc:      svc,
		Store:    store,
		Registry: registry,
		Logger:   logger,
	})

	t.Cleanup(registry.StopAll)
	return &harness{s: s, repo: repo, store: store, pol: pol}
}

// client returns a context bound to a fake MCP client session. Each distinct
// id behaves like a separate browser tab.
func (h *harness) client(id string) context.Context {
	return h.s.WithContext(context.Background(), newFakeSession(id))
}

// callTool calls a registered tool via the MCPServer's HandleMessage.
// Returns the parsed CallToolResult or an error.
func callTool(t *testing.T, s *server.MCPServer, ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()

	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respJSON := s.HandleMessage(ctx, reqJSON)

	respBytes, marshalErr := json.Marshal(respJSON)
	if marshalErr != nil {
		t.Fatalf("marshal response: %v", marshalErr)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}

	return &result, nil
}

// resultText extracts the first text content from a CallToolResult.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

// mustCall calls a tool and fails the test on any RPC error.
func mustCall(t *testing.T, s *server.MCPServer, ctx context.Context, name string, args map[string]any) string {
	t.Helper()
	result, err := callTool(t, s, ctx, name, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return resultText(t, result)
}
