package domain

import "time"

// CollaborationPolicy is the administrator-controlled global switch.
// Singleton; read on every join attempt.
type CollaborationPolicy struct {
	IsGloballyEnabled bool
	DisabledUntil     *time.Time
	DisabledReason    string
	UpdatedAt         time.Time
}

// Enabled combines the global switch with the scheduled disable
// window. A DisabledUntil in the future disables collaboration even
// if the switch is nominally on; once the window elapses a disable
// lifts itself without an explicit re-enable.
func (p CollaborationPolicy) Enabled(now time.Time) bool {
	if p.DisabledUntil != nil && p.DisabledUntil.After(now) {
		return false
	}
	if p.IsGloballyEnabled {
		return true
	}
	return p.DisabledUntil != nil
}
