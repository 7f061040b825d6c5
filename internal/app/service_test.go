package app

import (
	"errors"
	"testing"

	"github.com/akiviranta/tabdesk/internal/domain"
)

func TestService_runFailsOnLoadError(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.failLoad = true

	err := svc.Run(func(state *domain.DeskState) error {
		t.Error("fn must not run when load fails")
		return nil
	})
	if err == nil {
		t.Fatal("Run should return the load error")
	}
	if repo.saveCount() != 0 {
		t.Error("a failed load must never be followed by a save")
	}
}

func TestService_runRecoverFallsBack(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.failLoad = true

	ran := false
	err := svc.RunRecover(func(state *domain.DeskState) error {
		ran = true
		if state == nil || state.Presence == nil {
			t.Error("fallback state should be initialized")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunRecover: %v", err)
	}
	if !ran {
		t.Error("fn should run against the fallback state")
	}
}

func TestService_runSeedsTeamDefaults(t *testing.T) {
	svc, repo, _ := newTestService()

	if err := svc.Run(func(state *domain.DeskState) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if !repo.state.TeamsActive["sales"] {
		t.Error("sales should be seeded active by its default")
	}
	if repo.state.TeamsActive["support"] {
		t.Error("support defaults to inactive")
	}
}

func TestService_fnErrorAbortsSave(t *testing.T) {
	svc, repo, _ := newTestService()
	boom := errors.New("boom")

	err := svc.Run(func(state *domain.DeskState) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want fn error", err)
	}
	if repo.saveCount() != 0 {
		t.Error("fn error must abort the save")
	}
}

func TestService_notifierTriggeredAfterWrite(t *testing.T) {
	svc, _, _ := newTestService()
	trig := &countingTrigger{}
	svc.SetNotifier(trig)

	if err := svc.Run(func(state *domain.DeskState) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if trig.count != 1 {
		t.Errorf("notifier triggered %d times, want 1", trig.count)
	}

	_ = svc.Query(func(state *domain.DeskState) error { return nil })
	if trig.count != 1 {
		t.Error("read-only Query must not trigger the notifier")
	}
}

type countingTrigger struct{ count int }

func (c *countingTrigger) Trigger() { c.count++ }
