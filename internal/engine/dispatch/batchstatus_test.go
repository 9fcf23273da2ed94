package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestStatus(perMinute int, start time.Time) (*BatchStatus, *time.Time) {
	current := start
	b := NewBatchStatus(perMinute)
	b.now = func() time.Time { return current }
	return b, &current
}

func TestTryAcquire_CapsPerMinute(t *testing.T) {
	b, _ := newTestStatus(3, time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC))

	assert.True(t, b.TryAcquire("user-1"))
	assert.True(t, b.TryAcquire("user-1"))
	assert.True(t, b.TryAcquire("user-1"))
	assert.False(t, b.TryAcquire("user-1"))
}

func TestTryAcquire_WindowRolls(t *testing.T) {
	b, clock := newTestStatus(2, time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC))

	assert.True(t, b.TryAcquire("user-1"))
	*clock = clock.Add(30 * time.Second)
	assert.True(t, b.TryAcquire("user-1"))
	assert.False(t, b.TryAcquire("user-1"))

	// The first send falls out of the window; one slot reopens.
	*clock = clock.Add(31 * time.Second)
	assert.True(t, b.TryAcquire("user-1"))
	assert.False(t, b.TryAcquire("user-1"))
}

func TestTryAcquire_PerRecipientIsolation(t *testing.T) {
	b, _ := newTestStatus(1, time.Now())

	assert.True(t, b.TryAcquire("user-1"))
	assert.False(t, b.TryAcquire("user-1"))
	assert.True(t, b.TryAcquire("user-2"))
}

func TestProcessedCount(t *testing.T) {
	b, clock := newTestStatus(1, time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC))

	b.TryAcquire("user-1")
	*clock = clock.Add(2 * time.Minute)
	b.TryAcquire("user-1")

	assert.Equal(t, 2, b.ProcessedCount("user-1"))
	assert.Equal(t, 0, b.ProcessedCount("user-2"))
}

func TestCleanupStale(t *testing.T) {
	b, clock := newTestStatus(10, time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC))

	b.TryAcquire("idle-user")
	*clock = clock.Add(2 * time.Hour)
	b.TryAcquire("active-user")

	removed := b.CleanupStale(time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, b.TrackedRecipients())
	assert.Equal(t, 0, b.ProcessedCount("idle-user"))
}
