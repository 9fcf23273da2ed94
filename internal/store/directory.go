package store

import (
	"context"
	"database/sql"
	"encoding/json"
	goerrors "errors"
	"time"

	"notify-engine/internal/common/errors"
	"notify-engine/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = goerrors.New("not found")

// RecipientDirectory answers who can be notified and how they want it.
type RecipientDirectory interface {
	// Owner returns the primary commercial contact for a business entity.
	Owner(ctx context.Context, entityType models.EntityType, entityID string) (*models.Recipient, error)
	// MembersByRole returns every active recipient holding the role.
	MembersByRole(ctx context.Context, role models.Role) ([]*models.Recipient, error)
	Lookup(ctx context.Context, recipientID string) (*models.Recipient, error)
	// Profile returns the recipient's delivery profile, creating the
	// default one on first access.
	Profile(ctx context.Context, recipientID string) (*models.RecipientProfile, error)
	SaveProfile(ctx context.Context, profile *models.RecipientProfile) error
}

type PostgresRecipientDirectory struct {
	db *sql.DB
}

func NewPostgresRecipientDirectory(db *sql.DB) *PostgresRecipientDirectory {
	return &PostgresRecipientDirectory{db: db}
}

func (d *PostgresRecipientDirectory) Owner(ctx context.Context, entityType models.EntityType, entityID string) (*models.Recipient, error) {
	var query string
	switch entityType {
	case models.EntityInvoice:
		query = `
			SELECT r.id, r.name, r.email, r.phone, r.role, r.is_primary
			FROM recipients r
			JOIN invoices i ON i.owner_id = r.id
			WHERE i.id = $1`
	case models.EntityAgreement:
		query = `
			SELECT r.id, r.name, r.email, r.phone, r.role, r.is_primary
			FROM recipients r
			JOIN agreements a ON a.owner_id = r.id
			WHERE a.id = $1`
	default:
		return nil, ErrNotFound
	}

	rec, err := d.scanRecipient(d.db.QueryRowContext(ctx, query, entityID))
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.NewStoreError("lookup owner", err)
	}
	return rec, nil
}

func (d *PostgresRecipientDirectory) MembersByRole(ctx context.Context, role models.Role) ([]*models.Recipient, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, email, phone, role, is_primary
		FROM recipients
		WHERE role = $1 AND active = TRUE
		ORDER BY id`,
		role,
	)
	if err != nil {
		return nil, errors.NewStoreError("lookup members by role", err)
	}
	defer rows.Close()

	var out []*models.Recipient
	for rows.Next() {
		var rec models.Recipient
		var role string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Phone, &role, &rec.IsPrimary); err != nil {
			return nil, errors.NewStoreError("scan recipient", err)
		}
		rec.Role = models.NormalizeRole(role)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("iterate recipients", err)
	}
	return out, nil
}

func (d *PostgresRecipientDirectory) Lookup(ctx context.Context, recipientID string) (*models.Recipient, error) {
	rec, err := d.scanRecipient(d.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, role, is_primary
		FROM recipients
		WHERE id = $1`,
		recipientID,
	))
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.NewStoreError("lookup recipient", err)
	}
	return rec, nil
}

func (d *PostgresRecipientDirectory) Profile(ctx context.Context, recipientID string) (*models.RecipientProfile, error) {
	var raw []byte
	var updatedAt time.Time

	err := d.db.QueryRowContext(ctx, `
		SELECT profile, updated_at FROM recipient_profiles WHERE recipient_id = $1`,
		recipientID,
	).Scan(&raw, &updatedAt)

	if goerrors.Is(err, sql.ErrNoRows) {
		// First access creates the default profile.
		profile := models.DefaultProfile(recipientID)
		if err := d.SaveProfile(ctx, profile); err != nil {
			return nil, err
		}
		return profile, nil
	}
	if err != nil {
		return nil, errors.NewPreferenceLookupFailedError(recipientID, err)
	}

	var profile models.RecipientProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, errors.NewPreferenceLookupFailedError(recipientID, err)
	}
	profile.RecipientID = recipientID
	profile.UpdatedAt = updatedAt
	return &profile, nil
}

func (d *PostgresRecipientDirectory) SaveProfile(ctx context.Context, profile *models.RecipientProfile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return errors.NewStoreError("encode profile", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO recipient_profiles (recipient_id, profile, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (recipient_id) DO UPDATE SET profile = $2, updated_at = $3`,
		profile.RecipientID, raw, profile.UpdatedAt,
	)
	if err != nil {
		return errors.NewStoreError("save profile", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *PostgresRecipientDirectory) scanRecipient(row rowScanner) (*models.Recipient, error) {
	var rec models.Recipient
	var role string
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Phone, &role, &rec.IsPrimary); err != nil {
		return nil, err
	}
	rec.Role = models.NormalizeRole(role)
	return &rec, nil
}
