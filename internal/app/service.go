package app

import (
	"fmt"
	"log"
	"sync"

	"github.com/akiviranta/tabdesk/internal/domain"
)

// Triggerable is something that can be triggered after a state write (e.g. Notifier).
type Triggerable interface {
	Trigger()
}

// DeskService runs desk coordination use cases over persisted state.
type DeskService struct {
	repo     StateRepository
	policy   Policy
	logger   *log.Logger
	mu       sync.Mutex
	notifier Triggerable // optional; set via SetNotifier after construction
}

// NewDeskService returns a new DeskService.
func NewDeskService(repo StateRepository, policy Policy, logger *log.Logger) *DeskService {
	return &DeskService{repo: repo, policy: policy, logger: logger}
}

// SetNotifier attaches a Triggerable (e.g. *Notifier) that is poked after every
// state write, so connected clients see updates faster than their next poll.
func (s *DeskService) SetNotifier(n Triggerable) {
	s.notifier = n
}

// Run loads state, runs fn, then saves. Caller must not retain state after fn
// returns. On successful save, touches the notify signal file so other
// processes can push updates. If the state cannot be loaded, the error is
// returned immediately; ledger writes never fall back to an empty state,
// because Save() would overwrite the record with nothing.
func (s *DeskService) Run(fn func(*domain.DeskState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.repo.Load()
	if err != nil {
		return fmt.Errorf("state load: %w", err)
	}
	return s.mutate(state, fn)
}

// RunRecover is Run for presence publishing: when the state cannot be loaded
// it falls back to an empty record so the caller's own entry is still written.
// A wiped record self-heals within one staleness window as every live tab
// re-publishes itself; a load failure must never prevent a heartbeat from
// landing. Ledger writes must use Run instead.
func (s *DeskService) RunRecover(fn func(*domain.DeskState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.repo.Load()
	if err != nil {
		s.logger.Printf("Warning: state load failed in RunRecover: %v (starting fresh)", err)
		state = domain.NewDeskState()
	}
	return s.mutate(state, fn)
}

func (s *DeskService) mutate(state *domain.DeskState, fn func(*domain.DeskState) error) error {
	EnsureStateMaps(state)
	EnsureTeamDefaults(state, s.policy.Teams())
	if err := fn(state); err != nil {
		return err
	}
	if err := s.repo.Save(state); err != nil {
		return err
	}
	_ = TouchNotifySignal(s.policy.SignalFilePath())
	if s.notifier != nil {
		s.notifier.Trigger()
	}
	return nil
}

// Query loads state and runs fn without saving. Use for read-only checks.
// If the state cannot be loaded, falls back to an empty state since no save
// will occur.
func (s *DeskService) Query(fn func(*domain.DeskState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.repo.Load()
	if err != nil {
		s.logger.Printf("Warning: state load failed in Query: %v (using empty state)", err)
		state = domain.NewDeskState()
	}
	EnsureStateMaps(state)
	EnsureTeamDefaults(state, s.policy.Teams())
	return fn(state)
}

// Policy returns the policy for use in handlers that need retention etc.
func (s *DeskService) Policy() Policy { return s.policy }
