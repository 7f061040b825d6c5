package app

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/akiviranta/tabdesk/internal/domain"
)

// mockRepository implements StateRepository for tests. State is kept in memory.
type mockRepository struct {
	mu       sync.Mutex
	state    *domain.DeskState
	failLoad bool
	failSave bool
	saves    int
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
	if m.failSave {
		return errors.New("save failed")
	}
	m.state = state
	m.saves++
	return nil
}

func (m *mockRepository) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// mockModeStore implements ModeStore for tests.
type mockModeStore struct {
	mu    sync.Mutex
	modes map[string][2]string // tabKey → {mode, teamID}
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

// mockPolicy implements Policy for tests.
type mockPolicy struct {
	interval time.Duration
	ttl      time.Duration
	cooldown time.Duration
	teams    []domain.Team
}

func newMockPolicy() *mockPolicy {
	return &mockPolicy{
		interval: time.Second,
		ttl:      4 * time.Second,
		cooldown: 2 * time.Second,
		teams: []domain.Team{
			{ID: "sales", Name: "Sales", PagePrefix: "/sales", DefaultActive: true},
			{ID: "content", Name: "Content", PagePrefix: "/content", DefaultActive: true},
			{ID: "support", Name: "Support", PagePrefix: "/support", DefaultActive: false},
		},
	}
}

func (p *mockPolicy) HeartbeatInterval() time.Duration { return p.interval }
func (p *mockPolicy) PresenceTTL() time.Duration       { return p.ttl }
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

// newTestService returns a DeskService with in-memory storage for testing.
func newTestService() (*DeskService, *mockRepository, *mockPolicy) {
	repo := newMockRepository()
	pol := newMockPolicy()
	logger := log.New(io.Discard, "", 0)
	svc := NewDeskService(repo, pol, logger)
	return svc, repo, pol
}
