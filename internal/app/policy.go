package app

import (
	"time"

	"github.com/akiviranta/tabdesk/internal/domain"
)

// Policy is the configuration port used by the application.
// Implemented by internal/policy.Policy.
type Policy interface {
	HeartbeatInterval() time.Duration
	PresenceTTL() time.Duration
	AdminPIN() string
	PINCooldown() time.Duration
	MessageRetentionMax() int
	MessageRetentionDays() int
	SignalFilePath() string
	Teams() []domain.Team
	TeamByID(id string) (domain.Team, bool)
}
