package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notify-engine/internal/channels"
	"notify-engine/internal/common/errors"
	"notify-engine/internal/common/logger"
	"notify-engine/internal/models"
	"notify-engine/internal/store"
)

// ==========================
// Mock Implementations
// ==========================

type mockNotificationStore struct {
	mu sync.Mutex

	pending []*models.NotificationRecord

	sent        []string
	failed      map[string]string
	rescheduled map[string]rescheduleCall
}

type rescheduleCall struct {
	retryCount    int
	nextAttemptAt time.Time
}

func newMockNotificationStore(pending ...*models.NotificationRecord) *mockNotificationStore {
	return &mockNotificationStore{
		pending:     pending,
		failed:      make(map[string]string),
		rescheduled: make(map[string]rescheduleCall),
	}
}

func (m *mockNotificationStore) Create(ctx context.Context, rec *models.NotificationRecord) error {
	return nil
}

func (m *mockNotificationStore) PendingPage(ctx context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error) {
	if len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	return m.pending, nil
}

func (m *mockNotificationStore) MarkSent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, id)
	return nil
}

func (m *mockNotificationStore) MarkFailed(ctx context.Context, id, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = lastError
	return nil
}

func (m *mockNotificationStore) Reschedule(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rescheduled[id] = rescheduleCall{retryCount: retryCount, nextAttemptAt: nextAttemptAt}
	return nil
}

func (m *mockNotificationStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (m *mockNotificationStore) MarkReadBulk(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error) {
	return 0, nil
}

func (m *mockNotificationStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return 0, nil
}

func (m *mockNotificationStore) UnreadCountByCategory(ctx context.Context, recipientID string, category models.Category) (int, error) {
	return 0, nil
}

func (m *mockNotificationStore) UnreadOlderThan(ctx context.Context, cutoff time.Time) ([]*models.NotificationRecord, error) {
	return nil, nil
}

func (m *mockNotificationStore) UpdateSeverity(ctx context.Context, id string, severity models.Severity) error {
	return nil
}

func (m *mockNotificationStore) History(ctx context.Context, recipientID string, since time.Time, limit, offset int) ([]*models.NotificationRecord, error) {
	return nil, nil
}

type mockDirectory struct {
	recipients map[string]*models.Recipient
}

func (m *mockDirectory) Owner(ctx context.Context, entityType models.EntityType, entityID string) (*models.Recipient, error) {
	return nil, store.ErrNotFound
}

func (m *mockDirectory) MembersByRole(ctx context.Context, role models.Role) ([]*models.Recipient, error) {
	return nil, nil
}

func (m *mockDirectory) Lookup(ctx context.Context, recipientID string) (*models.Recipient, error) {
	if rec, ok := m.recipients[recipientID]; ok {
		return rec, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockDirectory) Profile(ctx context.Context, recipientID string) (*models.RecipientProfile, error) {
	return models.DefaultProfile(recipientID), nil
}

func (m *mockDirectory) SaveProfile(ctx context.Context, profile *models.RecipientProfile) error {
	return nil
}

type mockSender struct {
	mu       sync.Mutex
	channel  models.Channel
	sendFunc func(ctx context.Context, recipient *models.Recipient, msg *channels.Message) error
	calls    int
}

func (m *mockSender) Channel() models.Channel { return m.channel }

func (m *mockSender) Send(ctx context.Context, recipient *models.Recipient, msg *channels.Message) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.sendFunc != nil {
		return m.sendFunc(ctx, recipient, msg)
	}
	return nil
}

// ==========================
// Test Helper Functions
// ==========================

func testOptions() Options {
	return Options{
		PageSize:        100,
		WorkerPoolSize:  128,
		MaxRetries:      3,
		RetryBaseDelay:  5 * time.Second,
		RescheduleDelay: 5 * time.Minute,
		SendTimeout:     time.Second,
	}
}

func pendingRecord(id, recipientID string, retryCount int) *models.NotificationRecord {
	return &models.NotificationRecord{
		ID:          id,
		RecipientID: recipientID,
		Category:    models.CategoryInvoiceOverdue,
		Channel:     models.ChannelInApp,
		Severity:    models.SeverityMedium,
		Payload:     models.Payload{Subject: "s", Body: "b"},
		Status:      models.StatusPending,
		CreatedAt:   time.Now(),
		RetryCount:  retryCount,
	}
}

func newTestDispatcher(t *testing.T, st *mockNotificationStore, sender *mockSender, perMinute int) *Dispatcher {
	registry := channels.NewRegistry()
	registry.Register(sender)

	dir := &mockDirectory{recipients: map[string]*models.Recipient{
		"user-1": {ID: "user-1", Email: "u1@example.com"},
		"user-2": {ID: "user-2", Email: "u2@example.com"},
	}}

	return New(st, dir, registry, NewBatchStatus(perMinute), nil, testOptions(), logger.NewTestLogger(t))
}

// ==========================
// Tests
// ==========================

func TestRunCycle_DeliversAndMarksSent(t *testing.T) {
	st := newMockNotificationStore(
		pendingRecord("n-1", "user-1", 0),
		pendingRecord("n-2", "user-2", 0),
	)
	sender := &mockSender{channel: models.ChannelInApp}

	stats, err := newTestDispatcher(t, st, sender, 60).RunCycle(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, stats.Loaded)
	assert.Equal(t, 2, stats.Sent)
	assert.ElementsMatch(t, []string{"n-1", "n-2"}, st.sent)
	assert.Equal(t, 2, sender.calls)
}

func TestRunCycle_TransientFailureReschedulesWithBackoff(t *testing.T) {
	st := newMockNotificationStore(pendingRecord("n-1", "user-1", 0))
	sender := &mockSender{
		channel: models.ChannelInApp,
		sendFunc: func(ctx context.Context, recipient *models.Recipient, msg *channels.Message) error {
			return errors.NewTransientDeliveryError("IN_APP", assert.AnError)
		},
	}

	d := newTestDispatcher(t, st, sender, 60)
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	stats, err := d.RunCycle(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Retried)
	call, ok := st.rescheduled["n-1"]
	assert.True(t, ok)
	assert.Equal(t, 1, call.retryCount)
	assert.Equal(t, now.Add(5*time.Second), call.nextAttemptAt)
}

func TestRunCycle_BackoffGrowsWithRetryCount(t *testing.T) {
	st := newMockNotificationStore(pendingRecord("n-1", "user-1", 1))
	sender := &mockSender{
		channel: models.ChannelInApp,
		sendFunc: func(ctx context.Context, recipient *models.Recipient, msg *channels.Message) error {
			return errors.NewTransientDeliveryError("IN_APP", assert.AnError)
		},
	}

	d := newTestDispatcher(t, st, sender, 60)
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	_, err := d.RunCycle(context.Background())

	assert.NoError(t, err)
	call := st.rescheduled["n-1"]
	assert.Equal(t, 2, call.retryCount)
	assert.Equal(t, now.Add(10*time.Second), call.nextAttemptAt)
}

func TestRunCycle_ThirdConsecutiveFailureGoesTerminal(t *testing.T) {
	st := newMockNotificationStore(pendingRecord("n-1", "user-1", 2))
	sender := &mockSender{
		channel: models.ChannelInApp,
		sendFunc: func(ctx context.Context, recipient *models.Recipient, msg *channels.Message) error {
			return errors.NewTransientDeliveryError("IN_APP", assert.AnError)
		},
	}

	stats, err := newTestDispatcher(t, st, sender, 60).RunCycle(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Contains(t, st.failed, "n-1")
	assert.Empty(t, st.rescheduled, "a record at the retry limit must not get another attempt")
}

func TestRunCycle_PermanentFailureShortCircuits(t *testing.T) {
	st := newMockNotificationStore(pendingRecord("n-1", "user-1", 0))
	sender := &mockSender{
		channel: models.ChannelInApp,
		sendFunc: func(ctx context.Context, recipient *models.Recipient, msg *channels.Message) error {
			return errors.NewPermanentDeliveryError("IN_APP", "address rejected")
		},
	}

	stats, err := newTestDispatcher(t, st, sender, 60).RunCycle(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Contains(t, st.failed, "n-1")
	assert.Empty(t, st.rescheduled, "permanent failures must not burn retries")
}

func TestRunCycle_UnknownRecipientFails(t *testing.T) {
	st := newMockNotificationStore(pendingRecord("n-1", "ghost", 0))
	sender := &mockSender{channel: models.ChannelInApp}

	stats, err := newTestDispatcher(t, st, sender, 60).RunCycle(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, sender.calls)
}

func TestRunCycle_RateCapDefersWithoutBurningRetries(t *testing.T) {
	var page []*models.NotificationRecord
	for i := 0; i < 100; i++ {
		page = append(page, pendingRecord(
			"n-"+string(rune('a'+i/26))+string(rune('a'+i%26)), "user-1", 1))
	}
	st := newMockNotificationStore(page...)
	sender := &mockSender{channel: models.ChannelInApp}

	d := newTestDispatcher(t, st, sender, 60)
	stats, err := d.RunCycle(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 60, stats.Sent)
	assert.Equal(t, 40, stats.Deferred)
	for _, call := range st.rescheduled {
		assert.Equal(t, 1, call.retryCount, "deferral is not a failure")
	}
}

func TestRunCycle_SaturatedPoolLeavesRecordsPending(t *testing.T) {
	st := newMockNotificationStore(
		pendingRecord("n-1", "user-1", 0),
		pendingRecord("n-2", "user-1", 0),
		pendingRecord("n-3", "user-2", 0),
	)

	release := make(chan struct{})
	sender := &mockSender{
		channel: models.ChannelInApp,
		sendFunc: func(ctx context.Context, recipient *models.Recipient, msg *channels.Message) error {
			<-release
			return nil
		},
	}

	registry := channels.NewRegistry()
	registry.Register(sender)
	dir := &mockDirectory{recipients: map[string]*models.Recipient{
		"user-1": {ID: "user-1"},
		"user-2": {ID: "user-2"},
	}}
	opts := testOptions()
	opts.WorkerPoolSize = 1
	status := NewBatchStatus(60)
	d := New(st, dir, registry, status, nil, opts, logger.NewTestLogger(t))

	// The single worker slot is taken by the loop before the first send
	// starts, so the remaining records are skipped while it is held.
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()

	stats, err := d.RunCycle(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 2, stats.Skipped)
	assert.Len(t, st.sent, 1)
	assert.Empty(t, st.rescheduled, "skipped records stay untouched")
	assert.Empty(t, st.failed)
	assert.Equal(t, 1, status.ProcessedCount("user-1"))
	assert.Equal(t, 0, status.ProcessedCount("user-2"),
		"skipped records must not spend the recipient's minute budget")
}

func TestRunCycle_EmptyQueue(t *testing.T) {
	st := newMockNotificationStore()
	sender := &mockSender{channel: models.ChannelInApp}

	stats, err := newTestDispatcher(t, st, sender, 60).RunCycle(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 0, stats.Loaded)
	assert.Equal(t, 0, sender.calls)
}
