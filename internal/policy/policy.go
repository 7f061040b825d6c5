// Package policy holds server configuration: timing values for the presence
// protocol, the team catalog, the admin PIN, and file locations.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akiviranta/tabdesk/internal/domain"
)

// GlobalStateDir returns the default global state directory (~/.config/tabdesk).
func GlobalStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "tabdesk")
}

// GlobalStateFile returns the default global state file path.
func GlobalStateFile() string {
	return filepath.Join(GlobalStateDir(), "state.sqlite")
}

// TeamConfig describes one catalog team.
type TeamConfig struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	PagePrefix    string `yaml:"page_prefix"`
	DefaultActive bool   `yaml:"default_active"`
}

// Config holds tabdesk configuration.
type Config struct {
	StateFile string `yaml:"state_file"`
	LogFile   string `yaml:"log_file"`
	HTTPPort  int    `yaml:"http_port"`

	// Presence protocol timing. The TTL is a 4x safety margin over the
	// heartbeat interval, tolerating one or two missed ticks from
	// backgrounded tabs.
	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`
	PresenceTTLMS       int `yaml:"presence_ttl_ms"`

	// AdminPIN is the shared secret gating the TEAM -> ADMIN transition.
	// A stand-in capability check; swap SecretVerifier for a real
	// authorization service in production deployments.
	AdminPIN      string `yaml:"admin_pin"`
	PINCooldownMS int    `yaml:"pin_cooldown_ms"`

	MessageRetentionMax  int `yaml:"message_retention_max"`
	MessageRetentionDays int `yaml:"message_retention_days"`

	Teams []TeamConfig `yaml:"teams"`
}

// DefaultConfig returns sensible defaults, including a starter team catalog.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatIntervalMS:  1000,
		PresenceTTLMS:        4000,
		AdminPIN:             "1234",
		PINCooldownMS:        2000,
		MessageRetentionMax:  1000,
		MessageRetentionDays: 30,
		Teams: []TeamConfig{
			{ID: "sales", Name: "Sales", PagePrefix: "/sales", DefaultActive: true},
			{ID: "content", Name: "Content", PagePrefix: "/content", DefaultActive: true},
			{ID: "support", Name: "Support", PagePrefix: "/support", DefaultActive: false},
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Teams) == 0 {
		cfg.Teams = DefaultConfig().Teams
	}

	return cfg, nil
}

// Policy exposes configuration to the application.
type Policy struct {
	config *Config
	teams  map[string]domain.Team // by ID, built once at construction
}

// New creates a Policy from a Config.
func New(cfg *Config) *Policy {
	teams := make(map[string]domain.Team, len(cfg.Teams))
	for _, t := range cfg.Teams {
		teams[t.ID] = domain.Team{
			ID:            t.ID,
			Name:          t.Name,
			PagePrefix:    t.PagePrefix,
			DefaultActive: t.DefaultActive,
		}
	}
	return &Policy{config: cfg, teams: teams}
}

// StateFile returns the configured state file path. If unset, defaults to the
// global state file so every tab on the machine shares the same record.
func (p *Policy) StateFile() string {
	if p.config.StateFile == "" {
		return GlobalStateFile()
	}
	return p.config.StateFile
}

// SignalFilePath returns the path to the notify signal file (same directory
// as the state file). Watchers use this to detect state changes without
// relying on SQLite WAL file events.
func (p *Policy) SignalFilePath() string {
	return filepath.Join(filepath.Dir(p.StateFile()), ".tabdesk-notify")
}

// LogFile returns the configured log file path.
// If unset, defaults to ~/.config/tabdesk/tabdesk-server.log.
// Set to "none" or "off" to disable file logging entirely.
func (p *Policy) LogFile() string {
	if p.config.LogFile == "" {
		return filepath.Join(GlobalStateDir(), "tabdesk-server.log")
	}
	return p.config.LogFile
}

// HTTPPort returns the configured HTTP port (0 = auto-assign).
func (p *Policy) HTTPPort() int {
	return p.config.HTTPPort
}

// HeartbeatInterval returns the heartbeat tick period.
func (p *Policy) HeartbeatInterval() time.Duration {
	return time.Duration(p.config.HeartbeatIntervalMS) * time.Millisecond
}

// PresenceTTL returns the staleness threshold past which a presence entry is
// discarded as belonging to a tab no longer active.
func (p *Policy) PresenceTTL() time.Duration {
	return time.Duration(p.config.PresenceTTLMS) * time.Millisecond
}

// AdminPIN returns the shared secret for admin-mode elevation.
func (p *Policy) AdminPIN() string {
	return p.config.AdminPIN
}

// PINCooldown returns how long a failed elevation attempt blocks retries.
func (p *Policy) PINCooldown() time.Duration {
	return time.Duration(p.config.PINCooldownMS) * time.Millisecond
}

// MessageRetentionMax returns the max chat messages to keep.
func (p *Policy) MessageRetentionMax() int {
	return p.config.MessageRetentionMax
}

// MessageRetentionDays returns the chat message TTL in days.
func (p *Policy) MessageRetentionDays() int {
	return p.config.MessageRetentionDays
}

// Teams returns the static team catalog in configuration order.
func (p *Policy) Teams() []domain.Team {
	teams := make([]domain.Team, 0, len(p.config.Teams))
	for _, t := range p.config.Teams {
		teams = append(teams, p.teams[t.ID])
	}
	return teams
}

// TeamByID returns the catalog team with the given ID.
func (p *Policy) TeamByID(id string) (domain.Team, bool) {
	t, ok := p.teams[id]
	return t, ok
}
