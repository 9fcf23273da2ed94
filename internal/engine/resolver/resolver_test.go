package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"notify-engine/internal/common/logger"
	"notify-engine/internal/models"
	"notify-engine/internal/store"
)

type mockDirectory struct {
	OwnerFunc         func(ctx context.Context, entityType models.EntityType, entityID string) (*models.Recipient, error)
	MembersByRoleFunc func(ctx context.Context, role models.Role) ([]*models.Recipient, error)
}

func (m *mockDirectory) Owner(ctx context.Context, entityType models.EntityType, entityID string) (*models.Recipient, error) {
	return m.OwnerFunc(ctx, entityType, entityID)
}

func (m *mockDirectory) MembersByRole(ctx context.Context, role models.Role) ([]*models.Recipient, error) {
	return m.MembersByRoleFunc(ctx, role)
}

func (m *mockDirectory) Lookup(ctx context.Context, recipientID string) (*models.Recipient, error) {
	return nil, store.ErrNotFound
}

func (m *mockDirectory) Profile(ctx context.Context, recipientID string) (*models.RecipientProfile, error) {
	return models.DefaultProfile(recipientID), nil
}

func (m *mockDirectory) SaveProfile(ctx context.Context, profile *models.RecipientProfile) error {
	return nil
}

var (
	owner = &models.Recipient{ID: "owner-1", Role: models.RoleCommercial, IsPrimary: true}
	pm1   = &models.Recipient{ID: "pm-1", Role: models.RoleProjectManager}
	pm2   = &models.Recipient{ID: "pm-2", Role: models.RoleProjectManager}
	dm1   = &models.Recipient{ID: "dm-1", Role: models.RoleDecisionMaker}
)

func newTestDirectory() *mockDirectory {
	return &mockDirectory{
		OwnerFunc: func(ctx context.Context, entityType models.EntityType, entityID string) (*models.Recipient, error) {
			return owner, nil
		},
		MembersByRoleFunc: func(ctx context.Context, role models.Role) ([]*models.Recipient, error) {
			switch role {
			case models.RoleProjectManager:
				return []*models.Recipient{pm1, pm2}, nil
			case models.RoleDecisionMaker:
				return []*models.Recipient{dm1}, nil
			}
			return nil, nil
		},
	}
}

func recipientIDs(recipients []*models.Recipient) []string {
	ids := make([]string, len(recipients))
	for i, r := range recipients {
		ids[i] = r.ID
	}
	return ids
}

func TestResolve_UpcomingInvoice(t *testing.T) {
	r := New(newTestDirectory(), logger.NewTestLogger(t))

	got, err := r.Resolve(context.Background(), &models.Event{
		EntityType: models.EntityInvoice,
		EntityID:   "inv-1",
		Category:   models.CategoryInvoiceUpcoming,
		Severity:   "LOW",
	})

	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"owner-1", "pm-1", "pm-2"}, recipientIDs(got))
}

func TestResolve_PaymentConfirmationOnlyOwner(t *testing.T) {
	r := New(newTestDirectory(), logger.NewTestLogger(t))

	got, err := r.Resolve(context.Background(), &models.Event{
		EntityType: models.EntityInvoice,
		EntityID:   "inv-1",
		Category:   models.CategoryPaymentConfirmation,
		Severity:   "LOW",
	})

	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"owner-1"}, recipientIDs(got))
}

func TestResolve_OverdueAddsDecisionMakers(t *testing.T) {
	r := New(newTestDirectory(), logger.NewTestLogger(t))

	got, err := r.Resolve(context.Background(), &models.Event{
		EntityType: models.EntityInvoice,
		EntityID:   "inv-1",
		Category:   models.CategoryInvoiceOverdue,
		Severity:   "MEDIUM",
	})

	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"owner-1", "pm-1", "pm-2", "dm-1"}, recipientIDs(got))
}

func TestResolve_CriticalAddsDecisionMakers(t *testing.T) {
	r := New(newTestDirectory(), logger.NewTestLogger(t))

	got, err := r.Resolve(context.Background(), &models.Event{
		EntityType: models.EntityCustom,
		EntityID:   "sys-1",
		Category:   models.CategorySystem,
		Severity:   "CRITICAL",
	})

	assert.NoError(t, err)
	assert.Contains(t, recipientIDs(got), "dm-1")
}

func TestResolve_DedupesOverlappingRoles(t *testing.T) {
	dir := newTestDirectory()
	// The owner also shows up as a project manager.
	dir.MembersByRoleFunc = func(ctx context.Context, role models.Role) ([]*models.Recipient, error) {
		if role == models.RoleProjectManager {
			return []*models.Recipient{owner, pm1}, nil
		}
		return nil, nil
	}
	r := New(dir, logger.NewTestLogger(t))

	got, err := r.Resolve(context.Background(), &models.Event{
		EntityType: models.EntityInvoice,
		EntityID:   "inv-1",
		Category:   models.CategoryInvoiceUpcoming,
		Severity:   "LOW",
	})

	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"owner-1", "pm-1"}, recipientIDs(got))
}

func TestResolve_UnknownEntityIsNotAnError(t *testing.T) {
	dir := newTestDirectory()
	dir.OwnerFunc = func(ctx context.Context, entityType models.EntityType, entityID string) (*models.Recipient, error) {
		return nil, store.ErrNotFound
	}
	dir.MembersByRoleFunc = func(ctx context.Context, role models.Role) ([]*models.Recipient, error) {
		return nil, nil
	}
	r := New(dir, logger.NewTestLogger(t))

	got, err := r.Resolve(context.Background(), &models.Event{
		EntityType: models.EntityInvoice,
		EntityID:   "ghost",
		Category:   models.CategoryPaymentConfirmation,
		Severity:   "LOW",
	})

	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolve_DirectoryFailure(t *testing.T) {
	dir := newTestDirectory()
	dir.OwnerFunc = func(ctx context.Context, entityType models.EntityType, entityID string) (*models.Recipient, error) {
		return nil, errors.New("connection refused")
	}
	r := New(dir, logger.NewTestLogger(t))

	_, err := r.Resolve(context.Background(), &models.Event{
		EntityType: models.EntityInvoice,
		EntityID:   "inv-1",
		Category:   models.CategoryInvoiceUpcoming,
		Severity:   "LOW",
	})

	assert.Error(t, err)
}
