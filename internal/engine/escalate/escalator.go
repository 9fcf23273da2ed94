package escalate

import (
	"context"
	"time"

	"notify-engine/internal/common/logger"
	"notify-engine/internal/common/metrics"
	"notify-engine/internal/models"
	"notify-engine/internal/store"
)

// Escalation rule labels used in logs and metrics.
const (
	RuleUnreadBacklog = "unread_backlog"
	RuleUnreadAge     = "unread_age"
)

// Escalator raises notification severity when earlier ones go unheard.
// Severity only ever moves up; CRITICAL stays CRITICAL.
type Escalator struct {
	notifications store.NotificationStore
	logger        logger.Logger

	unreadThreshold int
	escalateAfter   time.Duration

	now func() time.Time
}

func New(notifications store.NotificationStore, unreadThreshold int, escalateAfter time.Duration, log logger.Logger) *Escalator {
	return &Escalator{
		notifications:   notifications,
		logger:          log.WithFields(map[string]interface{}{"component": "escalator"}),
		unreadThreshold: unreadThreshold,
		escalateAfter:   escalateAfter,
		now:             time.Now,
	}
}

// ApplyOnCreate returns the severity a new notification should carry,
// bumped one level when the recipient already has a backlog of unread
// notifications in the same category. A lookup failure leaves the
// severity unchanged rather than blocking creation.
func (e *Escalator) ApplyOnCreate(ctx context.Context, recipientID string, category models.Category, severity models.Severity) models.Severity {
	count, err := e.notifications.UnreadCountByCategory(ctx, recipientID, category)
	if err != nil {
		e.logger.Warn("unread count lookup failed, keeping severity", map[string]interface{}{
			"recipientId": recipientID,
			"category":    category,
			"error":       err.Error(),
		})
		return severity
	}

	if count < e.unreadThreshold {
		return severity
	}

	escalated := severity.Escalate()
	if escalated != severity {
		metrics.EscalationsTotal.WithLabelValues(RuleUnreadBacklog).Inc()
		e.logger.Info("severity escalated for unread backlog", map[string]interface{}{
			"recipientId": recipientID,
			"category":    category,
			"unreadCount": count,
			"from":        severity.String(),
			"to":          escalated.String(),
		})
	}
	return escalated
}

// Sweep bumps every notification that has sat unread past the age
// threshold. Runs periodically; a record is bumped at most once per
// sweep and never past CRITICAL.
func (e *Escalator) Sweep(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.escalateAfter)

	stale, err := e.notifications.UnreadOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	bumped := 0
	for _, rec := range stale {
		escalated := rec.Severity.Escalate()
		if escalated == rec.Severity {
			continue
		}
		if err := e.notifications.UpdateSeverity(ctx, rec.ID, escalated); err != nil {
			e.logger.Error("failed to escalate stale notification", map[string]interface{}{
				"notificationId": rec.ID,
				"error":          err.Error(),
			})
			continue
		}
		metrics.EscalationsTotal.WithLabelValues(RuleUnreadAge).Inc()
		bumped++
	}

	if bumped > 0 {
		e.logger.Info("age-based escalation sweep finished", map[string]interface{}{
			"examined": len(stale),
			"bumped":   bumped,
		})
	}
	return bumped, nil
}
