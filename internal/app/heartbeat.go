package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/akiviranta/tabdesk/internal/domain"
)

const (
	// defaultHeartbeatInterval is how often a tab re-publishes its presence.
	defaultHeartbeatInterval = 1000 * time.Millisecond

	// defaultPresenceTTL is how long since the last heartbeat before an
	// entry is considered stale and pruned. Must be a few intervals wide so
	// one missed tick does not flap the tab offline.
	defaultPresenceTTL = 4000 * time.Millisecond
)

// View is the derived presence snapshot published after every heartbeat tick.
type View struct {
	// OnlineTeams are catalog teams with at least one live TEAM-mode tab,
	// in catalog order.
	OnlineTeams []domain.Team
	// TeamsActive is the admin-controlled active flag per team id.
	TeamsActive map[string]bool
}

// HeartbeatAgent keeps one session's presence entry fresh. Each tick it runs a
// read-modify-write cycle against the shared record: prune entries older than
// the TTL, upsert this session's entry with a new timestamp, then derive the
// online-teams view from what remains. Pruning on every tick means N tabs give
// the record N overlapping janitors, so a single crashed tab disappears within
// one TTL window without any coordinator.
type HeartbeatAgent struct {
	svc      *DeskService
	session  *Session
	logger   *log.Logger
	interval time.Duration
	ttl      time.Duration
	onUpdate func(View)
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu   sync.Mutex
	view View
}

// HeartbeatOption configures the agent.
type HeartbeatOption func(*HeartbeatAgent)

// WithHeartbeatInterval sets the tick interval.
func WithHeartbeatInterval(d time.Duration) HeartbeatOption {
	return func(h *HeartbeatAgent) { h.interval = d }
}

// WithPresenceTTL sets the staleness threshold for pruning.
func WithPresenceTTL(d time.Duration) HeartbeatOption {
	return func(h *HeartbeatAgent) { h.ttl = d }
}

// WithOnUpdate sets a callback invoked with the derived view after each tick.
// The callback runs on the agent's goroutine and must not block.
func WithOnUpdate(fn func(View)) HeartbeatOption {
	return func(h *HeartbeatAgent) { h.onUpdate = fn }
}

// NewHeartbeatAgent creates a heartbeat agent for one session. Interval and
// TTL default to the policy's values when it provides them.
func NewHeartbeatAgent(svc *DeskService, session *Session, logger *log.Logger, opts ...HeartbeatOption) *HeartbeatAgent {
	h := &HeartbeatAgent{
		svc:      svc,
		session:  session,
		logger:   logger,
		interval: defaultHeartbeatInterval,
		ttl:      defaultPresenceTTL,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if pol := svc.Policy(); pol != nil {
		if d := pol.HeartbeatInterval(); d > 0 {
			h.interval = d
		}
		if d := pol.PresenceTTL(); d > 0 {
			h.ttl = d
		}
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Start begins the heartbeat loop. The first tick runs immediately so the
// session appears online without waiting a full interval. Returns when ctx is
// cancelled or Stop is called.
func (h *HeartbeatAgent) Start(ctx context.Context) {
	defer close(h.doneCh)
	h.logger.Printf("Heartbeat %s: started (interval=%s, ttl=%s)", h.session.SessionID(), h.interval, h.ttl)

	h.tick()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Printf("Heartbeat %s: stopped (context cancelled)", h.session.SessionID())
			return
		case <-h.stopCh:
			h.logger.Printf("Heartbeat %s: stopped", h.session.SessionID())
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

// Stop ends the loop, waits for it to drain, then removes this session's
// presence entry. The removal is best-effort: if it fails the entry ages out
// within one TTL window anyway.
func (h *HeartbeatAgent) Stop() {
	select {
	case <-h.stopCh:
	default:
		close(h.stopCh)
	}
	<-h.doneCh

	sid := h.session.SessionID()
	err := h.svc.Run(func(state *domain.DeskState) error {
		delete(state.Presence, sid)
		return nil
	})
	if err != nil {
		h.logger.Printf("Heartbeat %s: leave failed (entry will age out): %v", sid, err)
	}
}

// TickOnce runs one heartbeat cycle (for testing or manual trigger).
func (h *HeartbeatAgent) TickOnce() {
	h.tick()
}

// CurrentView returns the view derived by the most recent tick.
func (h *HeartbeatAgent) CurrentView() View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.view
}

// OnlineTeams returns the online teams from the most recent tick.
func (h *HeartbeatAgent) OnlineTeams() []domain.Team {
	return h.CurrentView().OnlineTeams
}

// tick runs one prune + upsert + derive cycle. Uses RunRecover so a corrupt
// or unreadable record never stops the heartbeat from landing. Errors are
// logged and retried on the next tick.
func (h *HeartbeatAgent) tick() {
	catalog := h.svc.Policy().Teams()
	var view View
	err := h.svc.RunRecover(func(state *domain.DeskState) error {
		now := time.Now()
		PrunePresence(state, now, h.ttl)
		entry := h.session.Entry(now)
		state.Presence[entry.SessionID] = &entry
		view = View{
			OnlineTeams: OnlineTeams(state, catalog),
			TeamsActive: make(map[string]bool, len(state.TeamsActive)),
		}
		for id, active := range state.TeamsActive {
			view.TeamsActive[id] = active
		}
		return nil
	})
	if err != nil {
		h.logger.Printf("Heartbeat %s: tick failed: %v", h.session.SessionID(), err)
		return
	}

	h.mu.Lock()
	h.view = view
	h.mu.Unlock()

	if h.onUpdate != nil {
		h.onUpdate(view)
	}
}
