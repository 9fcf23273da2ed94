package models

import (
	"strings"
	"time"
)

// Role is the canonical routing role of a recipient.
type Role string

const (
	RoleCommercial     Role = "commercial"
	RoleProjectManager Role = "project-manager"
	RoleDecisionMaker  Role = "decision-maker"
	RoleUnknown        Role = "unknown"
)

// roleSynonyms maps every spelling seen at the directory boundary to its
// canonical role. Normalization happens exactly once, here; consumers only
// ever see canonical values.
var roleSynonyms = map[string]Role{
	"commercial":           RoleCommercial,
	"role_commercial":      RoleCommercial,
	"sales":                RoleCommercial,
	"project-manager":      RoleProjectManager,
	"project_manager":      RoleProjectManager,
	"project manager":      RoleProjectManager,
	"role_project_manager": RoleProjectManager,
	"pm":                   RoleProjectManager,
	"decision-maker":       RoleDecisionMaker,
	"decision_maker":       RoleDecisionMaker,
	"decision maker":       RoleDecisionMaker,
	"role_decision_maker":  RoleDecisionMaker,
	"decideur":             RoleDecisionMaker,
}

// NormalizeRole canonicalizes a raw role string from the recipient directory.
func NormalizeRole(raw string) Role {
	if role, ok := roleSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return role
	}
	return RoleUnknown
}

// Recipient is a resolved notification target with its routing role.
type Recipient struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      Role   `json:"role"`
	IsPrimary bool   `json:"isPrimary"`
}

// QuietHours is a per-recipient local time window during which delivery is
// suppressed on the configured weekdays.
type QuietHours struct {
	Enabled  bool     `json:"enabled"`
	Start    string   `json:"start"` // "HH:MM" local time
	End      string   `json:"end"`   // "HH:MM" local time, may be before Start (spans midnight)
	Days     []string `json:"days"`  // lowercase weekday names
	Timezone string   `json:"timezone"`
}

// Contains reports whether the given instant falls inside the quiet window,
// evaluated in the recipient's timezone. Malformed configuration counts as
// "not quiet" so a bad profile never silently drops notifications.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)

	weekday := strings.ToLower(local.Weekday().String())
	inDays := false
	for _, d := range q.Days {
		if strings.ToLower(d) == weekday {
			inDays = true
			break
		}
	}
	if !inDays {
		return false
	}

	start, ok1 := parseMinutes(q.Start)
	end, ok2 := parseMinutes(q.End)
	if !ok1 || !ok2 {
		return false
	}
	now := local.Hour()*60 + local.Minute()

	// Window is [start, end); an end before start spans midnight.
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

func parseMinutes(hhmm string) (int, bool) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, m := atoi(parts[0]), atoi(parts[1])
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	if s == "" {
		return -1
	}
	return n
}

// RecipientProfile is the per-user delivery configuration. Created lazily
// with defaults on first access; mutated only by the recipient.
type RecipientProfile struct {
	RecipientID  string     `json:"recipientId"`
	EmailEnabled bool       `json:"emailEnabled"`
	SMSEnabled   bool       `json:"smsEnabled"`
	PushEnabled  bool       `json:"pushEnabled"`
	QuietHours   QuietHours `json:"quietHours"`

	// Categories is a closed capability table: per channel, per category
	// enablement. A missing entry means enabled; only explicit opt-outs
	// are stored.
	Categories map[Channel]map[Category]bool `json:"categories,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// ChannelEnabled reports the global toggle for a channel.
func (p *RecipientProfile) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelInApp:
		return p.PushEnabled
	default:
		return false
	}
}

// CategoryEnabled reports whether the category is enabled for the channel.
// Absent entries default to enabled.
func (p *RecipientProfile) CategoryEnabled(ch Channel, cat Category) bool {
	perChannel, ok := p.Categories[ch]
	if !ok {
		return true
	}
	enabled, ok := perChannel[cat]
	if !ok {
		return true
	}
	return enabled
}

// DefaultProfile returns the profile applied on first access: email and
// in-app on, SMS off, weekend quiet hours 22:00-07:00.
func DefaultProfile(recipientID string) *RecipientProfile {
	return &RecipientProfile{
		RecipientID:  recipientID,
		EmailEnabled: true,
		SMSEnabled:   false,
		PushEnabled:  true,
		QuietHours: QuietHours{
			Enabled:  true,
			Start:    "22:00",
			End:      "07:00",
			Days:     []string{"saturday", "sunday"},
			Timezone: "UTC",
		},
		UpdatedAt: time.Now().UTC(),
	}
}
