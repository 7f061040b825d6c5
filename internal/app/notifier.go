package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounceMs   = 200
	defaultPollInterval = 10 * time.Second
)

// DeskUpdateParams is the payload for notifications/desk_update.
type DeskUpdateParams struct {
	OnlineTeams []string        `json:"online_teams"`
	TeamsActive map[string]bool `json:"teams_active"`
	Summary     string          `json:"summary"`
}

// Notifier watches the signal file and pushes desk_update notifications to
// connected clients when the shared record changes. Any writer, including a
// separate server process sharing the same state file, can wake it by touching
// the signal file; the in-process write path also calls Trigger directly so a
// missed fsnotify event only delays the push until the fallback poll.
type Notifier struct {
	signalPath   string
	repo         StateRepository
	policy       Policy
	pushFunc     func(ctx context.Context, method string, params map[string]any)
	logger       *log.Logger
	debounceMs   int
	pollInterval time.Duration

	mu            sync.Mutex
	lastPushedRev string
	debounceTimer *time.Timer
	watcher       *fsnotify.Watcher
	useFsnotify   bool
	stopCh        chan struct{}
	doneCh        chan struct{}
	pushMu        sync.Mutex // serializes checkAndPush to prevent duplicate pushes
}

// NotifierOption configures the notifier.
type NotifierOption func(*Notifier)

// WithPollInterval sets the fallback poll interval.
func WithPollInterval(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		n.pollInterval = d
	}
}

// NewNotifier creates a notifier. pushFunc is called with method
// "notifications/desk_update" and the DeskUpdateParams fields whenever the
// derived view changes; it is expected to broadcast to all connected clients.
func NewNotifier(signalPath string, repo StateRepository, policy Policy, pushFunc func(ctx context.Context, method string, params map[string]any), logger *log.Logger, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		signalPath:   signalPath,
		repo:         repo,
		policy:       policy,
		pushFunc:     pushFunc,
		logger:       logger,
		debounceMs:   defaultDebounceMs,
		pollInterval: defaultPollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Start starts the file watcher and fallback poll. Returns when ctx is cancelled.
// If fsnotify fails to initialize, falls back to poll-only mode.
func (n *Notifier) Start(ctx context.Context) {
	defer close(n.doneCh)

	watchDir := filepath.Dir(n.signalPath)
	signalName := filepath.Base(n.signalPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		n.logger.Printf("Notifier: fsnotify init failed (%v), using poll-only", err)
		n.useFsnotify = false
	} else {
		n.watcher = watcher
		n.useFsnotify = true
		if err := watcher.Add(watchDir); err != nil {
			n.logger.Printf("Notifier: fsnotify add %s failed (%v), using poll-only", watchDir, err)
			_ = watcher.Close()
			n.watcher = nil
			n.useFsnotify = false
		}
	}

	if n.useFsnotify {
		defer n.watcher.Close()
		go n.watchLoop(ctx, signalName)
	}

	n.pollLoop(ctx)
}

// Stop signals the notifier to stop. Call after cancelling the context passed to Start.
func (n *Notifier) Stop() {
	close(n.stopCh)
	<-n.doneCh
}

// CheckOnce runs one check-and-push cycle (for testing or manual trigger).
func (n *Notifier) CheckOnce() {
	n.checkAndPush()
}

// Trigger forces a check-and-push cycle, bypassing the revision dedup.
// Call after a state write (DeskService does this) so clients hear about the
// change even if fsnotify misses the same-process write.
func (n *Notifier) Trigger() {
	n.mu.Lock()
	n.lastPushedRev = "" // reset so checkAndPush won't skip
	n.mu.Unlock()
	n.triggerDebounced()
}

func (n *Notifier) watchLoop(ctx context.Context, signalName string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != signalName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			n.triggerDebounced()
		case _, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (n *Notifier) triggerDebounced() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.debounceTimer != nil {
		n.debounceTimer.Stop()
	}
	n.debounceTimer = time.AfterFunc(time.Duration(n.debounceMs)*time.Millisecond, func() {
		n.checkAndPush()
	})
}

func (n *Notifier) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.checkAndPush()
		}
	}
}

func (n *Notifier) checkAndPush() {
	// Serialize the cycle. Without this the debounce timer goroutine and the
	// poll loop can both pass the revision dedup concurrently and push twice.
	n.pushMu.Lock()
	defer n.pushMu.Unlock()

	rev := n.readSignalRevision()
	if rev == "" {
		return
	}
	n.mu.Lock()
	if rev == n.lastPushedRev {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	state, err := n.repo.Load()
	if err != nil {
		return
	}
	EnsureStateMaps(state)

	now := time.Now()
	ttl := n.policy.PresenceTTL()
	PrunePresence(state, now, ttl)
	online := OnlineTeams(state, n.policy.Teams())

	ids := make([]string, 0, len(online))
	for _, t := range online {
		ids = append(ids, t.ID)
	}
	params := map[string]any{
		"online_teams": ids,
		"teams_active": state.TeamsActive,
		"summary":      fmt.Sprintf("%d team(s) online", len(ids)),
	}
	n.pushFunc(context.Background(), "notifications/desk_update", params)

	n.mu.Lock()
	n.lastPushedRev = rev
	n.mu.Unlock()
}

func (n *Notifier) readSignalRevision() string {
	data, err := os.ReadFile(n.signalPath)
	if err != nil {
		return ""
	}
	return string(data)
}
