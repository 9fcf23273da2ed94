package scan

import (
	"context"
	"fmt"
	"time"

	"notify-engine/internal/common/logger"
	"notify-engine/internal/models"
)

// Invoice is the slice of billing state the deadline scan needs.
type Invoice struct {
	ID        string
	Reference string
	Amount    float64
	DueDate   time.Time
}

// Agreement is the slice of contract state the deadline scan needs.
type Agreement struct {
	ID        string
	Name      string
	ExpiresAt time.Time
}

// InvoiceSource lists invoices still awaiting payment.
type InvoiceSource interface {
	Unpaid(ctx context.Context) ([]*Invoice, error)
}

// AgreementSource lists agreements that have not been terminated.
type AgreementSource interface {
	Active(ctx context.Context) ([]*Agreement, error)
}

// Sink receives the events a scan produces.
type Sink interface {
	Submit(ctx context.Context, event *models.Event) error
}

// Policy is the deadline scan configuration.
type Policy struct {
	// ReminderDays are the days-before-deadline marks that produce an
	// upcoming reminder, e.g. [7, 3, 1].
	ReminderDays []int
	// OverdueHighDays is how many days late an item must be before the
	// overdue condition is raised to HIGH.
	OverdueHighDays int
	// OverdueCritDays is how many days late before CRITICAL.
	OverdueCritDays int
}

// Scanner turns invoice and agreement deadlines into dispatch events.
// It is stateless; recurrence suppression happens downstream in the
// cooldown tracker, keyed by the condition ids built here.
type Scanner struct {
	invoices   InvoiceSource
	agreements AgreementSource
	sink       Sink
	policy     Policy
	logger     logger.Logger

	now func() time.Time
}

func New(invoices InvoiceSource, agreements AgreementSource, sink Sink, policy Policy, log logger.Logger) *Scanner {
	return &Scanner{
		invoices:   invoices,
		agreements: agreements,
		sink:       sink,
		policy:     policy,
		logger:     log.WithFields(map[string]interface{}{"component": "scanner"}),
		now:        time.Now,
	}
}

// Run executes one full scan pass. Per-item submit failures are logged
// and skipped so one bad item never blocks the rest of the scan.
func (s *Scanner) Run(ctx context.Context) error {
	if err := s.scanInvoices(ctx); err != nil {
		return err
	}
	return s.scanAgreements(ctx)
}

func (s *Scanner) scanInvoices(ctx context.Context) error {
	invoices, err := s.invoices.Unpaid(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	emitted := 0

	for _, inv := range invoices {
		if event := s.invoiceEvent(inv, now); event != nil {
			if err := s.sink.Submit(ctx, event); err != nil {
				s.logger.Error("failed to submit invoice event", map[string]interface{}{
					"invoiceId": inv.ID,
					"category":  event.Category,
					"error":     err.Error(),
				})
				continue
			}
			emitted++
		}
	}

	s.logger.Info("invoice scan finished", map[string]interface{}{
		"scanned": len(invoices),
		"emitted": emitted,
	})
	return nil
}

// invoiceEvent classifies one unpaid invoice against its due date.
// Overdue severity climbs with age; reminders fire only on the exact
// configured day marks.
func (s *Scanner) invoiceEvent(inv *Invoice, now time.Time) *models.Event {
	daysUntil := daysBetween(now, inv.DueDate)

	if daysUntil < 0 {
		daysLate := -daysUntil
		severity := models.SeverityMedium
		switch {
		case daysLate >= s.policy.OverdueCritDays:
			severity = models.SeverityCritical
		case daysLate >= s.policy.OverdueHighDays:
			severity = models.SeverityHigh
		}

		return &models.Event{
			EntityType:  models.EntityInvoice,
			EntityID:    inv.ID,
			Category:    models.CategoryInvoiceOverdue,
			Severity:    severity.String(),
			ConditionID: fmt.Sprintf("invoice-overdue:%s", inv.ID),
			Payload: models.Payload{
				Subject: fmt.Sprintf("Invoice %s is overdue", inv.Reference),
				Body:    fmt.Sprintf("Invoice %s (%.2f) was due %d day(s) ago.", inv.Reference, inv.Amount, daysLate),
				Metadata: map[string]interface{}{
					"invoiceId": inv.ID,
					"daysLate":  daysLate,
					"amount":    inv.Amount,
				},
			},
		}
	}

	for _, mark := range s.policy.ReminderDays {
		if daysUntil == mark {
			return &models.Event{
				EntityType:  models.EntityInvoice,
				EntityID:    inv.ID,
				Category:    models.CategoryInvoiceUpcoming,
				Severity:    models.SeverityLow.String(),
				ConditionID: fmt.Sprintf("invoice-upcoming:%s:%d", inv.ID, mark),
				Payload: models.Payload{
					Subject: fmt.Sprintf("Invoice %s due in %d day(s)", inv.Reference, mark),
					Body:    fmt.Sprintf("Invoice %s (%.2f) is due on %s.", inv.Reference, inv.Amount, inv.DueDate.Format("2006-01-02")),
					Metadata: map[string]interface{}{
						"invoiceId": inv.ID,
						"daysUntil": mark,
						"amount":    inv.Amount,
					},
				},
			}
		}
	}

	return nil
}

func (s *Scanner) scanAgreements(ctx context.Context) error {
	agreements, err := s.agreements.Active(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	emitted := 0

	for _, agr := range agreements {
		if event := s.agreementEvent(agr, now); event != nil {
			if err := s.sink.Submit(ctx, event); err != nil {
				s.logger.Error("failed to submit agreement event", map[string]interface{}{
					"agreementId": agr.ID,
					"category":    event.Category,
					"error":       err.Error(),
				})
				continue
			}
			emitted++
		}
	}

	s.logger.Info("agreement scan finished", map[string]interface{}{
		"scanned": len(agreements),
		"emitted": emitted,
	})
	return nil
}

func (s *Scanner) agreementEvent(agr *Agreement, now time.Time) *models.Event {
	daysUntil := daysBetween(now, agr.ExpiresAt)

	if daysUntil < 0 {
		return &models.Event{
			EntityType:  models.EntityAgreement,
			EntityID:    agr.ID,
			Category:    models.CategoryAgreementExpired,
			Severity:    models.SeverityHigh.String(),
			ConditionID: fmt.Sprintf("agreement-expired:%s", agr.ID),
			Payload: models.Payload{
				Subject: fmt.Sprintf("Agreement %q has expired", agr.Name),
				Body:    fmt.Sprintf("Agreement %q expired on %s.", agr.Name, agr.ExpiresAt.Format("2006-01-02")),
				Metadata: map[string]interface{}{
					"agreementId": agr.ID,
					"expiredAt":   agr.ExpiresAt.Format(time.RFC3339),
				},
			},
		}
	}

	for _, mark := range s.policy.ReminderDays {
		if daysUntil == mark {
			return &models.Event{
				EntityType:  models.EntityAgreement,
				EntityID:    agr.ID,
				Category:    models.CategoryAgreementExpiring,
				Severity:    models.SeverityMedium.String(),
				ConditionID: fmt.Sprintf("agreement-expiring:%s:%d", agr.ID, mark),
				Payload: models.Payload{
					Subject: fmt.Sprintf("Agreement %q expires in %d day(s)", agr.Name, mark),
					Body:    fmt.Sprintf("Agreement %q expires on %s.", agr.Name, agr.ExpiresAt.Format("2006-01-02")),
					Metadata: map[string]interface{}{
						"agreementId": agr.ID,
						"daysUntil":   mark,
					},
				},
			}
		}
	}

	return nil
}

// daysBetween counts whole calendar days from a to b, negative when b
// is in the past.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	at := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bt := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bt.Sub(at).Hours() / 24)
}
