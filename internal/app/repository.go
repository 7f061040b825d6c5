// Package app implements application use cases and defines ports (repository interfaces).
package app

import (
	"github.com/akiviranta/tabdesk/internal/domain"
)

// StateRepository loads and saves the full shared desk state.
// Implementation: internal/repository/sqlite.
type StateRepository interface {
	Load() (*domain.DeskState, error)
	Save(*domain.DeskState) error
}

// ModeStore persists a tab's sticky mode across reloads, keyed by the tab's
// stable key. This is a separate record from the shared presence blob: it is
// written synchronously on every mode transition and never touched by the
// whole-record Save.
type ModeStore interface {
	LoadMode(tabKey string) (mode domain.Mode, teamID string, ok bool, err error)
	SaveMode(tabKey string, mode domain.Mode, teamID string) error
}
