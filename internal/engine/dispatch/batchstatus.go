package dispatch

import (
	"sync"
	"time"
)

type recipientWindow struct {
	sendTimes      []time.Time
	processedCount int
	lastProcessed  time.Time
}

// BatchStatus enforces the per-recipient delivery cap over a rolling
// one-minute window and keeps processing counters for observability.
type BatchStatus struct {
	mu        sync.Mutex
	perMinute int
	windows   map[string]*recipientWindow

	now func() time.Time
}

func NewBatchStatus(perMinute int) *BatchStatus {
	return &BatchStatus{
		perMinute: perMinute,
		windows:   make(map[string]*recipientWindow),
		now:       time.Now,
	}
}

// TryAcquire consumes one delivery slot for the recipient if the rolling
// window has room. Check and record are one atomic step.
func (b *BatchStatus) TryAcquire(recipientID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	w, ok := b.windows[recipientID]
	if !ok {
		w = &recipientWindow{}
		b.windows[recipientID] = w
	}

	w.sendTimes = pruneOlderThan(w.sendTimes, now.Add(-time.Minute))
	if len(w.sendTimes) >= b.perMinute {
		return false
	}

	w.sendTimes = append(w.sendTimes, now)
	w.processedCount++
	w.lastProcessed = now
	return true
}

// CleanupStale drops recipients idle longer than maxIdle so the map does
// not grow without bound. Returns how many were removed.
func (b *BatchStatus) CleanupStale(maxIdle time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-maxIdle)
	removed := 0
	for id, w := range b.windows {
		if w.lastProcessed.Before(cutoff) {
			delete(b.windows, id)
			removed++
		}
	}
	return removed
}

// ProcessedCount returns the lifetime delivery count for a recipient
// since its window was created.
func (b *BatchStatus) ProcessedCount(recipientID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.windows[recipientID]; ok {
		return w.processedCount
	}
	return 0
}

func (b *BatchStatus) TrackedRecipients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows)
}

func pruneOlderThan(times []time.Time, cutoff time.Time) []time.Time {
	// Times are appended in order, so find the first one still in window.
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	return times[idx:]
}
