package domain

import "errors"

// Sentinel errors for recoverable, user-visible conditions. None of these is
// fatal to a session; callers surface them and carry on.
var (
	// ErrPINMismatch is returned when an admin-mode elevation attempt presents
	// the wrong PIN. The session's mode is left unchanged.
	ErrPINMismatch = errors.New("pin mismatch")

	// ErrPINCooldown is returned when an elevation attempt arrives before the
	// cooldown window from the previous mismatch has elapsed.
	ErrPINCooldown = errors.New("pin cooldown active")

	// ErrUnknownTeam is returned when an operation names a team that is not in
	// the configured catalog.
	ErrUnknownTeam = errors.New("unknown team")
)
