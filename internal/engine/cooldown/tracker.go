package cooldown

import (
	"sync"
	"time"

	"notify-engine/internal/models"
)

type entry struct {
	lastSentAt   time.Time
	lastSeverity models.Severity
}

// Tracker suppresses repeat notifications for the same recurring
// condition inside a severity-dependent window. Check and record are a
// single atomic step, so concurrent producers of the same condition
// cannot both pass.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]entry

	critical time.Duration
	standard time.Duration

	now func() time.Time
}

func New(critical, standard time.Duration) *Tracker {
	return &Tracker{
		entries:  make(map[string]entry),
		critical: critical,
		standard: standard,
		now:      time.Now,
	}
}

// Allow reports whether a condition may fire now, and records the firing
// when it does. A severity change always passes: state changes must
// never be hidden by dedup. Conditions without an ID bypass tracking.
func (t *Tracker) Allow(conditionID string, severity models.Severity) bool {
	if conditionID == "" {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	e, ok := t.entries[conditionID]
	if ok && e.lastSeverity == severity && now.Sub(e.lastSentAt) < t.window(severity) {
		return false
	}

	t.entries[conditionID] = entry{lastSentAt: now, lastSeverity: severity}
	return true
}

// Reset clears one condition so its next occurrence fires immediately.
// Called when the underlying condition is resolved.
func (t *Tracker) Reset(conditionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, conditionID)
}

// ResetAll drops all tracked state. Run daily so stale conditions do
// not accumulate across days.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]entry)
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// CRITICAL conditions re-fire sooner than everything else.
func (t *Tracker) window(severity models.Severity) time.Duration {
	if severity >= models.SeverityCritical {
		return t.critical
	}
	return t.standard
}
