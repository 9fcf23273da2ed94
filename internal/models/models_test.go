package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeverityOrderingAndEscalation(t *testing.T) {
	assert.True(t, SeverityLow < SeverityMedium)
	assert.True(t, SeverityMedium < SeverityHigh)
	assert.True(t, SeverityHigh < SeverityCritical)

	assert.Equal(t, SeverityMedium, SeverityLow.Escalate())
	assert.Equal(t, SeverityCritical, SeverityHigh.Escalate())
	assert.Equal(t, SeverityCritical, SeverityCritical.Escalate())
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, ParseSeverity("CRITICAL"))
	assert.Equal(t, SeverityLow, ParseSeverity("garbage"), "unknown names default to LOW")
}

func TestNormalizeRole(t *testing.T) {
	tests := map[string]Role{
		"Commercial":      RoleCommercial,
		"project manager": RoleProjectManager,
		"PM":              RoleProjectManager,
		"decision-maker":  RoleDecisionMaker,
		"janitor":         RoleUnknown,
	}
	for raw, want := range tests {
		assert.Equal(t, want, NormalizeRole(raw), "raw role %q", raw)
	}
}

func TestQuietHours_DisabledNeverContains(t *testing.T) {
	q := QuietHours{Enabled: false, Start: "00:00", End: "23:59", Days: []string{"monday"}, Timezone: "UTC"}
	assert.False(t, q.Contains(time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)))
}

func TestQuietHours_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	q := QuietHours{Enabled: true, Start: "22:00", End: "23:00", Days: []string{"monday"}, Timezone: "Mars/Olympus"}
	assert.True(t, q.Contains(time.Date(2026, 3, 16, 22, 30, 0, 0, time.UTC)))
}

func TestNotificationRecord_Unread(t *testing.T) {
	rec := &NotificationRecord{Status: StatusPending}
	assert.True(t, rec.Unread())
	rec.Status = StatusSent
	assert.True(t, rec.Unread(), "delivered but unacknowledged still counts as unread")
	rec.Status = StatusRead
	assert.False(t, rec.Unread())
}
