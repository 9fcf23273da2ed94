package preference

import (
	"time"

	"notify-engine/internal/models"
)

// Suppression reasons reported by the filter.
const (
	ReasonChannelDisabled  = "channel_disabled"
	ReasonCategoryDisabled = "category_disabled"
	ReasonQuietHours       = "quiet_hours"
)

// Allow decides whether a (recipient, channel, category) combination may
// be delivered at the given instant. Pure function of its inputs.
//
// Suppressed notifications are dropped, not queued: a condition that
// still holds after the quiet window will fire again on the next scan.
func Allow(profile *models.RecipientProfile, ch models.Channel, cat models.Category, at time.Time) (bool, string) {
	// No profile means no restrictions.
	if profile == nil {
		return true, ""
	}
	if !profile.ChannelEnabled(ch) {
		return false, ReasonChannelDisabled
	}
	if !profile.CategoryEnabled(ch, cat) {
		return false, ReasonCategoryDisabled
	}
	if profile.QuietHours.Contains(at) {
		return false, ReasonQuietHours
	}
	return true, ""
}
