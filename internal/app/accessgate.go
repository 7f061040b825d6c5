package app

import (
	"strings"

	"github.com/akiviranta/tabdesk/internal/domain"
)

// Gate decides whether a mode permits navigation to a page path. It is pure:
// no side effects, no blocking, no errors. Anything it cannot positively
// validate is denied. Safe to call on every navigation attempt and render.
type Gate struct {
	teams map[string]domain.Team
}

// NewGate builds a gate over the static team catalog.
func NewGate(catalog []domain.Team) *Gate {
	teams := make(map[string]domain.Team, len(catalog))
	for _, t := range catalog {
		teams[t.ID] = t
	}
	return &Gate{teams: teams}
}

// Allows reports whether a tab in the given mode may navigate to path.
// ADMIN is unrestricted. TEAM requires the team to exist in the catalog, to
// be flagged active, and the path to start with the team's page prefix.
func (g *Gate) Allows(mode domain.Mode, teamID, path string, teamsActive map[string]bool) bool {
	switch mode {
	case domain.ModeAdmin:
		return true
	case domain.ModeTeam:
		team, ok := g.teams[teamID]
		if !ok || team.PagePrefix == "" {
			return false
		}
		if !teamsActive[teamID] {
			return false
		}
		return strings.HasPrefix(path, team.PagePrefix)
	}
	return false
}
