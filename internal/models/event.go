package models

// EntityType identifies the kind of business entity an event refers to.
type EntityType string

const (
	EntityInvoice   EntityType = "invoice"
	EntityAgreement EntityType = "agreement"
	EntityCustom    EntityType = "custom"
)

// Event is a business condition entering the dispatch pipeline, produced by
// a scheduled scan or a direct domain action.
type Event struct {
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Category   Category   `json:"category"`
	Severity   string     `json:"severity"`

	// ConditionID identifies a recurring condition for deduplication.
	// Empty for one-shot events, which bypass the cooldown tracker.
	ConditionID string  `json:"conditionId,omitempty"`
	Payload     Payload `json:"payload"`
}

// SeverityLevel parses the wire severity into its ordered level.
func (e *Event) SeverityLevel() Severity {
	return ParseSeverity(e.Severity)
}
