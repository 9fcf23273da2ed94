package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"notify-engine/internal/common/errors"
	"notify-engine/internal/models"
)

// NotificationStore persists notification records and drives their
// lifecycle transitions.
type NotificationStore interface {
	Create(ctx context.Context, rec *models.NotificationRecord) error
	PendingPage(ctx context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, lastError string) error
	Reschedule(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, lastError string) error
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkReadBulk(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	UnreadCountByCategory(ctx context.Context, recipientID string, category models.Category) (int, error)
	UnreadOlderThan(ctx context.Context, cutoff time.Time) ([]*models.NotificationRecord, error)
	UpdateSeverity(ctx context.Context, id string, severity models.Severity) error
	History(ctx context.Context, recipientID string, since time.Time, limit, offset int) ([]*models.NotificationRecord, error)
}

type PostgresNotificationStore struct {
	db *sql.DB
}

func NewPostgresNotificationStore(db *sql.DB) *PostgresNotificationStore {
	return &PostgresNotificationStore{db: db}
}

const notificationColumns = `id, recipient_id, category, channel, severity, payload, status, created_at, read_at, next_attempt_at, retry_count, last_error`

func (s *PostgresNotificationStore) Create(ctx context.Context, rec *models.NotificationRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return errors.NewStoreError("create notification", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, category, channel, severity, payload, status, created_at, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.RecipientID, rec.Category, rec.Channel, rec.Severity.String(),
		payload, rec.Status, rec.CreatedAt, rec.RetryCount,
	)
	if err != nil {
		return errors.NewStoreError("create notification", err)
	}
	return nil
}

// PendingPage returns up to limit PENDING records that are due at now,
// oldest first. Records deferred to the future are skipped.
func (s *PostgresNotificationStore) PendingPage(ctx context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE status = 'PENDING' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		ORDER BY created_at ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, errors.NewStoreError("load pending page", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func (s *PostgresNotificationStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'SENT', next_attempt_at = NULL, last_error = ''
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return errors.NewStoreError("mark sent", err)
	}
	return nil
}

// MarkFailed is terminal: retry bookkeeping is frozen as-is.
func (s *PostgresNotificationStore) MarkFailed(ctx context.Context, id, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'FAILED', next_attempt_at = NULL, last_error = $2
		WHERE id = $1`,
		id, lastError,
	)
	if err != nil {
		return errors.NewStoreError("mark failed", err)
	}
	return nil
}

func (s *PostgresNotificationStore) Reschedule(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET retry_count = $2, next_attempt_at = $3, last_error = $4
		WHERE id = $1`,
		id, retryCount, nextAttemptAt, lastError,
	)
	if err != nil {
		return errors.NewStoreError("reschedule", err)
	}
	return nil
}

// MarkRead is idempotent: marking an already-read record is a no-op.
func (s *PostgresNotificationStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'READ', read_at = $2
		WHERE id = $1 AND status != 'READ'`,
		id, at,
	)
	if err != nil {
		return errors.NewStoreError("mark read", err)
	}
	return nil
}

// MarkReadBulk marks the given ids as read for one recipient and
// returns how many rows actually transitioned.
func (s *PostgresNotificationStore) MarkReadBulk(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'READ', read_at = $3
		WHERE recipient_id = $1 AND id = ANY($2) AND status != 'READ'`,
		recipientID, pq.Array(ids), at,
	)
	if err != nil {
		return 0, errors.NewStoreError("mark read bulk", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewStoreError("mark read bulk", err)
	}
	return count, nil
}

func (s *PostgresNotificationStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND status != 'READ'`,
		recipientID,
	).Scan(&count)
	if err != nil {
		return 0, errors.NewStoreError("unread count", err)
	}
	return count, nil
}

func (s *PostgresNotificationStore) UnreadCountByCategory(ctx context.Context, recipientID string, category models.Category) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND category = $2 AND status != 'READ'`,
		recipientID, category,
	).Scan(&count)
	if err != nil {
		return 0, errors.NewStoreError("unread count by category", err)
	}
	return count, nil
}

// UnreadOlderThan returns unread, still-undelivered-or-delivered
// records created before cutoff. Used by the age-based escalation sweep.
func (s *PostgresNotificationStore) UnreadOlderThan(ctx context.Context, cutoff time.Time) ([]*models.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE status != 'READ' AND status != 'FAILED' AND created_at < $1
		ORDER BY created_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, errors.NewStoreError("load unread older than", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func (s *PostgresNotificationStore) UpdateSeverity(ctx context.Context, id string, severity models.Severity) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET severity = $2 WHERE id = $1`,
		id, severity.String(),
	)
	if err != nil {
		return errors.NewStoreError("update severity", err)
	}
	return nil
}

func (s *PostgresNotificationStore) History(ctx context.Context, recipientID string, since time.Time, limit, offset int) ([]*models.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		recipientID, since, limit, offset,
	)
	if err != nil {
		return nil, errors.NewStoreError("load history", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func scanNotifications(rows *sql.Rows) ([]*models.NotificationRecord, error) {
	var out []*models.NotificationRecord

	for rows.Next() {
		var (
			rec      models.NotificationRecord
			severity string
			payload  []byte
			readAt   sql.NullTime
			nextAt   sql.NullTime
			lastErr  sql.NullString
		)

		if err := rows.Scan(
			&rec.ID, &rec.RecipientID, &rec.Category, &rec.Channel, &severity,
			&payload, &rec.Status, &rec.CreatedAt, &readAt, &nextAt,
			&rec.RetryCount, &lastErr,
		); err != nil {
			return nil, errors.NewStoreError("scan notification", err)
		}

		rec.Severity = models.ParseSeverity(severity)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Payload); err != nil {
				return nil, errors.NewStoreError("decode payload", err)
			}
		}
		if readAt.Valid {
			t := readAt.Time
			rec.ReadAt = &t
		}
		if nextAt.Valid {
			t := nextAt.Time
			rec.NextAttemptAt = &t
		}
		if lastErr.Valid {
			rec.LastError = lastErr.String
		}

		out = append(out, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("iterate notifications", err)
	}
	return out, nil
}
