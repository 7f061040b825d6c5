package app

import (
	"context"
	"log"
	"time"

	"github.com/akiviranta/tabdesk/internal/domain"
)

const (
	// defaultJanitorInterval is how often the janitor sweeps the record.
	defaultJanitorInterval = 5 * time.Second
)

// Janitor is the server-side backstop for presence pruning. Connected tabs
// already prune on every heartbeat tick, but when the last tab crashes nobody
// is left to remove its entry. The janitor sweeps the shared record on its own
// interval so a dashboard reading it directly never sees ghosts for long.
type Janitor struct {
	svc      *DeskService
	logger   *log.Logger
	interval time.Duration
	ttl      time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// JanitorOption configures the janitor.
type JanitorOption func(*Janitor)

// WithJanitorInterval sets the sweep interval.
func WithJanitorInterval(d time.Duration) JanitorOption {
	return func(j *Janitor) { j.interval = d }
}

// WithJanitorTTL sets the staleness threshold for pruning.
func WithJanitorTTL(d time.Duration) JanitorOption {
	return func(j *Janitor) { j.ttl = d }
}

// NewJanitor creates a janitor. The TTL defaults to the policy's presence TTL.
func NewJanitor(svc *DeskService, logger *log.Logger, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		svc:      svc,
		logger:   logger,
		interval: defaultJanitorInterval,
		ttl:      defaultPresenceTTL,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if pol := svc.Policy(); pol != nil {
		if d := pol.PresenceTTL(); d > 0 {
			j.ttl = d
		}
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Start begins the sweep loop. Returns when ctx is cancelled or Stop is called.
func (j *Janitor) Start(ctx context.Context) {
	defer close(j.doneCh)
	j.logger.Printf("Janitor: started (interval=%s, ttl=%s)", j.interval, j.ttl)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Println("Janitor: stopped (context cancelled)")
			return
		case <-j.stopCh:
			j.logger.Println("Janitor: stopped")
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// Stop signals the janitor to stop.
func (j *Janitor) Stop() {
	close(j.stopCh)
	<-j.doneCh
}

// SweepOnce runs one sweep cycle (for testing or manual trigger).
func (j *Janitor) SweepOnce() {
	j.sweep()
}

// sweep checks for stale entries read-only first and only takes the write
// path when there is something to prune, so an idle desk does not rewrite the
// record every interval.
func (j *Janitor) sweep() {
	stale := 0
	_ = j.svc.Query(func(state *domain.DeskState) error {
		now := time.Now()
		for _, e := range state.Presence {
			if e == nil || now.Sub(e.LastHeartbeat) >= j.ttl {
				stale++
			}
		}
		return nil
	})
	if stale == 0 {
		return
	}

	pruned := 0
	err := j.svc.Run(func(state *domain.DeskState) error {
		pruned = PrunePresence(state, time.Now(), j.ttl)
		pol := j.svc.Policy()
		PruneMessages(state, pol.MessageRetentionMax(), pol.MessageRetentionDays())
		return nil
	})
	if err != nil {
		j.logger.Printf("Janitor: sweep failed: %v", err)
		return
	}
	if pruned > 0 {
		j.logger.Printf("Janitor: pruned %d stale presence entr(ies)", pruned)
	}
}
