package app

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akiviranta/tabdesk/internal/domain"
)

// SecretVerifier checks a presented admin PIN. The static implementation below
// is a stand-in; a deployment can substitute a real authorization service.
type SecretVerifier interface {
	Verify(pin string) bool
}

// StaticPIN verifies against a fixed shared secret. An empty secret never
// verifies, so a misconfigured deployment fails closed.
type StaticPIN string

// Verify implements SecretVerifier.
func (s StaticPIN) Verify(pin string) bool {
	return s != "" && pin == string(s)
}

// Session is one tab's mode state machine. It owns the tab's mode (ADMIN or
// TEAM plus team id), a session id unique for the tab's lifetime, and the
// transition rules: entering team mode is an unconditional downgrade, while
// returning to admin mode requires the shared secret and is rate-limited by a
// cooldown after a mismatch.
//
// Every transition synchronously persists the mode through the ModeStore
// (keyed by the stable tabKey) so the access gate and a page reload agree.
type Session struct {
	mu       sync.Mutex
	id       string
	tabKey   string
	mode     domain.Mode
	teamID   string
	failedAt time.Time

	store    ModeStore // optional; nil disables sticky mode
	verifier SecretVerifier
	cooldown time.Duration
	teamByID func(string) (domain.Team, bool)
	logger   *log.Logger
}

// NewSession creates a session for one tab. The session id is freshly
// generated and never reused; the mode is restored from the ModeStore when a
// record for tabKey exists, defaulting to ADMIN otherwise. A persisted team
// that has since left the catalog is discarded and the session falls back to
// ADMIN rather than starting in an unresolvable TEAM state.
func NewSession(tabKey string, pol Policy, store ModeStore, verifier SecretVerifier, logger *log.Logger) *Session {
	s := &Session{
		id:       uuid.NewString(),
		tabKey:   tabKey,
		mode:     domain.ModeAdmin,
		store:    store,
		verifier: verifier,
		cooldown: pol.PINCooldown(),
		teamByID: pol.TeamByID,
		logger:   logger,
	}
	if store != nil && tabKey != "" {
		mode, teamID, ok, err := store.LoadMode(tabKey)
		if err != nil {
			logger.Printf("Session %s: mode restore failed: %v (starting in ADMIN)", s.id, err)
		} else if ok && mode.Valid() {
			if mode == domain.ModeTeam {
				if _, known := pol.TeamByID(teamID); !known {
					logger.Printf("Session %s: persisted team %q no longer in catalog (starting in ADMIN)", s.id, teamID)
					return s
				}
			}
			s.mode = mode
			s.teamID = teamID
		}
	}
	return s
}

// SessionID returns the opaque id identifying this tab in the presence record.
func (s *Session) SessionID() string { return s.id }

// CurrentMode returns the session's mode and, in TEAM mode, the active team id.
func (s *Session) CurrentMode() (domain.Mode, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.teamID
}

// Entry builds this session's presence entry with the given heartbeat time.
func (s *Session) Entry(now time.Time) domain.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.PresenceEntry{
		SessionID:     s.id,
		Mode:          s.mode,
		TeamID:        s.teamID,
		LastHeartbeat: now,
	}
}

// EnterTeamMode switches the session to TEAM mode for the given team. No
// secret is required since this is a privilege downgrade. Re-entering the
// current team is a no-op that still persists (idempotent).
func (s *Session) EnterTeamMode(teamID string) error {
	if _, ok := s.teamByID(teamID); !ok {
		return fmt.Errorf("enter team mode: %w: %q", domain.ErrUnknownTeam, teamID)
	}
	s.mu.Lock()
	s.mode = domain.ModeTeam
	s.teamID = teamID
	s.mu.Unlock()
	return s.persist()
}

// EnterAdminMode attempts the TEAM -> ADMIN elevation with the presented PIN.
// During the cooldown window after a mismatch it returns (false,
// ErrPINCooldown) without consulting the verifier. On a mismatch it records
// the failure time and returns (false, ErrPINMismatch); the mode is unchanged.
// On a match the session transitions to ADMIN, the team selection is cleared,
// and the result is (true, nil). Already being in ADMIN mode still succeeds.
func (s *Session) EnterAdminMode(pin string) (bool, error) {
	s.mu.Lock()
	now := time.Now()
	if !s.failedAt.IsZero() && now.Sub(s.failedAt) < s.cooldown {
		s.mu.Unlock()
		return false, domain.ErrPINCooldown
	}
	if !s.verifier.Verify(pin) {
		s.failedAt = now
		s.mu.Unlock()
		return false, domain.ErrPINMismatch
	}
	s.mode = domain.ModeAdmin
	s.teamID = ""
	s.failedAt = time.Time{}
	s.mu.Unlock()
	return true, s.persist()
}

// persist writes the current mode through the ModeStore. The in-memory
// transition has already happened; a store failure is returned so the caller
// can surface it, but it does not roll the transition back.
func (s *Session) persist() error {
	if s.store == nil || s.tabKey == "" {
		return nil
	}
	mode, teamID := s.CurrentMode()
	if err := s.store.SaveMode(s.tabKey, mode, teamID); err != nil {
		return fmt.Errorf("persist mode: %w", err)
	}
	return nil
}
