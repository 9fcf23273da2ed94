package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"notify-engine/internal/common/errors"
	"notify-engine/internal/common/logger"
	"notify-engine/internal/common/metrics"
	"notify-engine/internal/common/validation"
	"notify-engine/internal/engine/cooldown"
	"notify-engine/internal/engine/escalate"
	"notify-engine/internal/engine/preference"
	"notify-engine/internal/engine/resolver"
	"notify-engine/internal/models"
	"notify-engine/internal/store"
)

const ReasonCooldown = "cooldown"

// CreateResult reports what one event produced.
type CreateResult struct {
	NotificationIDs []string       `json:"notificationIds"`
	Suppressed      map[string]int `json:"suppressed,omitempty"`
}

// Engine is the ingestion pipeline: resolve recipients, apply
// preferences, dedup recurring conditions, escalate, persist.
// Persisted records are picked up asynchronously by the dispatcher.
type Engine struct {
	directory     store.RecipientDirectory
	notifications store.NotificationStore
	resolver      *resolver.Resolver
	cooldown      *cooldown.Tracker
	escalator     *escalate.Escalator
	logger        logger.Logger

	smsThreshold models.Severity

	now func() time.Time
}

func New(
	directory store.RecipientDirectory,
	notifications store.NotificationStore,
	res *resolver.Resolver,
	tracker *cooldown.Tracker,
	esc *escalate.Escalator,
	smsThreshold models.Severity,
	log logger.Logger,
) *Engine {
	return &Engine{
		directory:     directory,
		notifications: notifications,
		resolver:      res,
		cooldown:      tracker,
		escalator:     esc,
		logger:        log.WithFields(map[string]interface{}{"component": "engine"}),
		smsThreshold:  smsThreshold,
		now:           time.Now,
	}
}

// IngestRaw validates and decodes an externally supplied event before
// running it through the pipeline. Malformed input is rejected, never
// partially processed.
func (e *Engine) IngestRaw(ctx context.Context, raw map[string]interface{}) (*CreateResult, error) {
	if err := validation.ValidateEvent(raw); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.NewMalformedEventError(err.Error())
	}
	var event models.Event
	if err := json.Unmarshal(encoded, &event); err != nil {
		return nil, errors.NewMalformedEventError(err.Error())
	}

	return e.CreateNotification(ctx, &event)
}

// Submit feeds a scan-produced event into the pipeline.
func (e *Engine) Submit(ctx context.Context, event *models.Event) error {
	_, err := e.CreateNotification(ctx, event)
	return err
}

// CreateNotification runs one event through the full pipeline and
// persists a PENDING record per surviving (recipient, channel) pair.
//
// The cooldown gate runs once per event, after filtering, and only when
// at least one pair survived: a fully suppressed occurrence must not
// consume the condition's window.
func (e *Engine) CreateNotification(ctx context.Context, event *models.Event) (*CreateResult, error) {
	result := &CreateResult{Suppressed: make(map[string]int)}
	severity := event.SeverityLevel()
	now := e.now()

	recipients, err := e.resolver.Resolve(ctx, event)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return result, nil
	}

	type pending struct {
		recipient *models.Recipient
		channel   models.Channel
	}
	var survivors []pending

	for _, recipient := range recipients {
		// A failed preference lookup must not block the alert: proceed
		// without restrictions rather than dropping it.
		profile, err := e.directory.Profile(ctx, recipient.ID)
		if err != nil {
			e.logger.Warn("preference lookup failed, delivering unrestricted", map[string]interface{}{
				"recipientId": recipient.ID,
				"error":       err.Error(),
			})
			profile = nil
		}

		for _, ch := range e.candidateChannels(severity) {
			allowed, reason := preference.Allow(profile, ch, event.Category, now)
			if !allowed {
				result.Suppressed[reason]++
				metrics.NotificationsSuppressed.WithLabelValues(reason).Inc()
				continue
			}
			survivors = append(survivors, pending{recipient: recipient, channel: ch})
		}
	}

	if len(survivors) == 0 {
		return result, nil
	}

	if !e.cooldown.Allow(event.ConditionID, severity) {
		result.Suppressed[ReasonCooldown] += len(survivors)
		metrics.NotificationsSuppressed.WithLabelValues(ReasonCooldown).Add(float64(len(survivors)))
		e.logger.Debug("condition in cooldown, suppressed", map[string]interface{}{
			"conditionId": event.ConditionID,
			"severity":    severity.String(),
			"suppressed":  len(survivors),
		})
		return result, nil
	}

	// Backlog escalation is per recipient; compute once per recipient,
	// not per channel.
	escalated := make(map[string]models.Severity)
	for _, p := range survivors {
		if _, ok := escalated[p.recipient.ID]; !ok {
			escalated[p.recipient.ID] = e.escalator.ApplyOnCreate(ctx, p.recipient.ID, event.Category, severity)
		}
	}

	for _, p := range survivors {
		rec := &models.NotificationRecord{
			ID:          uuid.New().String(),
			RecipientID: p.recipient.ID,
			Category:    event.Category,
			Channel:     p.channel,
			Severity:    escalated[p.recipient.ID],
			Payload:     event.Payload,
			Status:      models.StatusPending,
			CreatedAt:   now,
		}
		if err := e.notifications.Create(ctx, rec); err != nil {
			return nil, err
		}
		metrics.NotificationsCreated.WithLabelValues(string(event.Category), string(p.channel)).Inc()
		result.NotificationIDs = append(result.NotificationIDs, rec.ID)
	}

	e.logger.Info("event processed", map[string]interface{}{
		"entityType": event.EntityType,
		"entityId":   event.EntityID,
		"category":   event.Category,
		"created":    len(result.NotificationIDs),
		"suppressed": result.Suppressed,
	})
	return result, nil
}

// CreateDirect persists a notification for one known recipient,
// bypassing resolution and dedup but still honoring preferences.
func (e *Engine) CreateDirect(ctx context.Context, recipientID string, category models.Category, severity models.Severity, payload models.Payload) (*CreateResult, error) {
	result := &CreateResult{Suppressed: make(map[string]int)}
	now := e.now()

	profile, err := e.directory.Profile(ctx, recipientID)
	if err != nil {
		e.logger.Warn("preference lookup failed, delivering unrestricted", map[string]interface{}{
			"recipientId": recipientID,
			"error":       err.Error(),
		})
		profile = nil
	}

	for _, ch := range e.candidateChannels(severity) {
		allowed, reason := preference.Allow(profile, ch, category, now)
		if !allowed {
			result.Suppressed[reason]++
			metrics.NotificationsSuppressed.WithLabelValues(reason).Inc()
			continue
		}

		rec := &models.NotificationRecord{
			ID:          uuid.New().String(),
			RecipientID: recipientID,
			Category:    category,
			Channel:     ch,
			Severity:    severity,
			Payload:     payload,
			Status:      models.StatusPending,
			CreatedAt:   now,
		}
		if err := e.notifications.Create(ctx, rec); err != nil {
			return nil, err
		}
		metrics.NotificationsCreated.WithLabelValues(string(category), string(ch)).Inc()
		result.NotificationIDs = append(result.NotificationIDs, rec.ID)
	}

	return result, nil
}

// candidateChannels lists where a notification of this severity may go.
// SMS is reserved for urgent traffic.
func (e *Engine) candidateChannels(severity models.Severity) []models.Channel {
	chs := []models.Channel{models.ChannelInApp, models.ChannelEmail}
	if severity >= e.smsThreshold {
		chs = append(chs, models.ChannelSMS)
	}
	return chs
}

// ResolveCondition clears the dedup window for a condition once the
// underlying issue is fixed, so a recurrence alerts immediately.
func (e *Engine) ResolveCondition(conditionID string) {
	e.cooldown.Reset(conditionID)
}

func (e *Engine) MarkRead(ctx context.Context, notificationID string) error {
	return e.notifications.MarkRead(ctx, notificationID, e.now())
}

func (e *Engine) MarkReadBulk(ctx context.Context, recipientID string, ids []string) (int64, error) {
	return e.notifications.MarkReadBulk(ctx, recipientID, ids, e.now())
}

func (e *Engine) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return e.notifications.UnreadCount(ctx, recipientID)
}

// History returns the recipient's notifications from the last sinceDays
// days, newest first.
func (e *Engine) History(ctx context.Context, recipientID string, sinceDays, limit, offset int) ([]*models.NotificationRecord, error) {
	if sinceDays <= 0 {
		sinceDays = 30
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	since := e.now().AddDate(0, 0, -sinceDays)
	return e.notifications.History(ctx, recipientID, since, limit, offset)
}
