package preference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notify-engine/internal/models"
)

// Saturday inside the default weekend quiet window.
var saturdayNight = time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)

// Monday at the same clock time, outside the quiet days.
var mondayNight = time.Date(2026, 3, 16, 23, 0, 0, 0, time.UTC)

func TestAllow_DefaultProfile(t *testing.T) {
	profile := models.DefaultProfile("user-1")
	noon := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		channel models.Channel
		at      time.Time
		allowed bool
		reason  string
	}{
		{"email allowed weekday noon", models.ChannelEmail, noon, true, ""},
		{"in-app allowed weekday noon", models.ChannelInApp, noon, true, ""},
		{"sms disabled by default", models.ChannelSMS, noon, false, ReasonChannelDisabled},
		{"email suppressed saturday night", models.ChannelEmail, saturdayNight, false, ReasonQuietHours},
		{"email allowed monday night", models.ChannelEmail, mondayNight, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, reason := Allow(profile, tt.channel, models.CategoryInvoiceUpcoming, tt.at)
			assert.Equal(t, tt.allowed, allowed)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestAllow_CategoryOptOut(t *testing.T) {
	profile := models.DefaultProfile("user-1")
	profile.Categories = map[models.Channel]map[models.Category]bool{
		models.ChannelEmail: {
			models.CategorySystem: false,
		},
	}
	noon := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

	allowed, reason := Allow(profile, models.ChannelEmail, models.CategorySystem, noon)
	assert.False(t, allowed)
	assert.Equal(t, ReasonCategoryDisabled, reason)

	// Opt-out is per channel: the same category stays live elsewhere.
	allowed, _ = Allow(profile, models.ChannelInApp, models.CategorySystem, noon)
	assert.True(t, allowed)

	// Absent categories default to enabled.
	allowed, _ = Allow(profile, models.ChannelEmail, models.CategoryInvoiceOverdue, noon)
	assert.True(t, allowed)
}

func TestAllow_QuietHoursSpansMidnight(t *testing.T) {
	profile := models.DefaultProfile("user-1")
	profile.QuietHours = models.QuietHours{
		Enabled:  true,
		Start:    "22:00",
		End:      "07:00",
		Days:     []string{"monday", "tuesday"},
		Timezone: "UTC",
	}

	// 23:30 Monday is inside the window.
	allowed, reason := Allow(profile, models.ChannelEmail, models.CategorySystem,
		time.Date(2026, 3, 16, 23, 30, 0, 0, time.UTC))
	assert.False(t, allowed)
	assert.Equal(t, ReasonQuietHours, reason)

	// 06:30 Tuesday is still inside the wrapped window.
	allowed, _ = Allow(profile, models.ChannelEmail, models.CategorySystem,
		time.Date(2026, 3, 17, 6, 30, 0, 0, time.UTC))
	assert.False(t, allowed)

	// 07:00 is the exclusive end.
	allowed, _ = Allow(profile, models.ChannelEmail, models.CategorySystem,
		time.Date(2026, 3, 17, 7, 0, 0, 0, time.UTC))
	assert.True(t, allowed)
}

func TestAllow_NilProfileAllowsEverything(t *testing.T) {
	at := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	allowed, reason := Allow(nil, models.ChannelSMS, models.CategoryInvoiceOverdue, at)
	assert.True(t, allowed)
	assert.Empty(t, reason)
}

func TestAllow_QuietHoursRespectTimezone(t *testing.T) {
	profile := models.DefaultProfile("user-1")
	profile.QuietHours = models.QuietHours{
		Enabled:  true,
		Start:    "22:00",
		End:      "07:00",
		Days:     []string{"saturday"},
		Timezone: "America/New_York",
	}

	// 02:00 UTC Sunday is 22:00 Saturday in New York.
	allowed, reason := Allow(profile, models.ChannelEmail, models.CategorySystem,
		time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC))
	assert.False(t, allowed)
	assert.Equal(t, ReasonQuietHours, reason)
}

func TestAllow_MalformedQuietHoursNeverSuppress(t *testing.T) {
	profile := models.DefaultProfile("user-1")
	profile.QuietHours = models.QuietHours{
		Enabled:  true,
		Start:    "not-a-time",
		End:      "07:00",
		Days:     []string{"saturday"},
		Timezone: "UTC",
	}

	allowed, _ := Allow(profile, models.ChannelEmail, models.CategorySystem, saturdayNight)
	assert.True(t, allowed, "bad quiet hours config must not drop notifications")
}
