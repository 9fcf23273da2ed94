package resolver

import (
	"context"
	goerrors "errors"

	"notify-engine/internal/common/errors"
	"notify-engine/internal/common/logger"
	"notify-engine/internal/models"
	"notify-engine/internal/store"
)

// Resolver maps an event to the set of recipients who should hear
// about it, based on roles and the entity's ownership.
type Resolver struct {
	directory store.RecipientDirectory
	logger    logger.Logger
}

func New(directory store.RecipientDirectory, log logger.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		logger:    log.WithFields(map[string]interface{}{"component": "resolver"}),
	}
}

// Resolve returns the deduplicated recipient set for an event.
//
// Routing policy:
//   - the entity's commercial owner always hears about it
//   - project managers hear about everything except payment confirmations
//   - decision makers are added for overdue, expired and CRITICAL conditions
//
// An entity with no known owner resolves to whatever the role rules
// produce; if nothing matches, the empty set comes back with no error
// and the event is dropped upstream.
func (r *Resolver) Resolve(ctx context.Context, event *models.Event) ([]*models.Recipient, error) {
	seen := make(map[string]bool)
	var out []*models.Recipient

	add := func(recipients ...*models.Recipient) {
		for _, rec := range recipients {
			if rec == nil || seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			out = append(out, rec)
		}
	}

	owner, err := r.directory.Owner(ctx, event.EntityType, event.EntityID)
	switch {
	case err == nil:
		add(owner)
	case goerrors.Is(err, store.ErrNotFound):
		r.logger.Warn("entity has no owner", map[string]interface{}{
			"entityType": event.EntityType,
			"entityId":   event.EntityID,
		})
	default:
		return nil, errors.NewResolutionFailedError(string(event.EntityType), event.EntityID)
	}

	if event.Category != models.CategoryPaymentConfirmation {
		managers, err := r.directory.MembersByRole(ctx, models.RoleProjectManager)
		if err != nil {
			return nil, errors.NewResolutionFailedError(string(event.EntityType), event.EntityID)
		}
		add(managers...)
	}

	if needsDecisionMakers(event) {
		makers, err := r.directory.MembersByRole(ctx, models.RoleDecisionMaker)
		if err != nil {
			return nil, errors.NewResolutionFailedError(string(event.EntityType), event.EntityID)
		}
		add(makers...)
	}

	if len(out) == 0 {
		r.logger.Warn("event resolved to no recipients", map[string]interface{}{
			"entityType": event.EntityType,
			"entityId":   event.EntityID,
			"category":   event.Category,
		})
	}

	return out, nil
}

func needsDecisionMakers(event *models.Event) bool {
	if event.SeverityLevel() >= models.SeverityCritical {
		return true
	}
	switch event.Category {
	case models.CategoryInvoiceOverdue, models.CategoryAgreementExpired:
		return true
	}
	return false
}
