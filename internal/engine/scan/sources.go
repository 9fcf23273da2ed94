package scan

import (
	"context"
	"database/sql"

	"notify-engine/internal/common/errors"
)

// PostgresInvoiceSource reads unpaid invoices from the billing tables.
type PostgresInvoiceSource struct {
	db *sql.DB
}

func NewPostgresInvoiceSource(db *sql.DB) *PostgresInvoiceSource {
	return &PostgresInvoiceSource{db: db}
}

func (s *PostgresInvoiceSource) Unpaid(ctx context.Context) ([]*Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference, amount, due_date
		FROM invoices
		WHERE paid_at IS NULL
		ORDER BY due_date ASC`,
	)
	if err != nil {
		return nil, errors.NewStoreError("load unpaid invoices", err)
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.Reference, &inv.Amount, &inv.DueDate); err != nil {
			return nil, errors.NewStoreError("scan invoice", err)
		}
		out = append(out, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("iterate invoices", err)
	}
	return out, nil
}

// PostgresAgreementSource reads active agreements.
type PostgresAgreementSource struct {
	db *sql.DB
}

func NewPostgresAgreementSource(db *sql.DB) *PostgresAgreementSource {
	return &PostgresAgreementSource{db: db}
}

func (s *PostgresAgreementSource) Active(ctx context.Context) ([]*Agreement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, expires_at
		FROM agreements
		WHERE terminated_at IS NULL
		ORDER BY expires_at ASC`,
	)
	if err != nil {
		return nil, errors.NewStoreError("load active agreements", err)
	}
	defer rows.Close()

	var out []*Agreement
	for rows.Next() {
		var agr Agreement
		if err := rows.Scan(&agr.ID, &agr.Name, &agr.ExpiresAt); err != nil {
			return nil, errors.NewStoreError("scan agreement", err)
		}
		out = append(out, &agr)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("iterate agreements", err)
	}
	return out, nil
}
