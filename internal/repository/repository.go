package repository

import (
	"github.com/akiviranta/tabdesk/internal/repository/sqlite"
)

// NewStore returns the SQLite-backed store at the given path. The result
// implements both app.StateRepository (the shared desk record) and
// app.ModeStore (per-tab sticky mode records).
// The path is typically from policy.StateFile() (default ~/.config/tabdesk/state.sqlite).
func NewStore(path string) (*sqlite.Store, error) {
	return sqlite.New(path)
}
