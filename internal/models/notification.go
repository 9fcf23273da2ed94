package models

import "time"

// Status is the delivery lifecycle state of a notification record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
	StatusRead    Status = "READ"
)

// Channel is a delivery mechanism behind the uniform send contract.
type Channel string

const (
	ChannelInApp Channel = "IN_APP"
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// AllChannels lists every supported channel in dispatch order.
var AllChannels = []Channel{ChannelInApp, ChannelEmail, ChannelSMS}

// Category classifies the business condition behind a notification.
type Category string

const (
	CategoryInvoiceUpcoming     Category = "invoice-upcoming"
	CategoryInvoiceOverdue      Category = "invoice-overdue"
	CategoryPaymentConfirmation Category = "payment-confirmation"
	CategoryAgreementExpiring   Category = "agreement-expiring"
	CategoryAgreementExpired    Category = "agreement-expired"
	CategorySystem              Category = "system"
	CategoryCustom              Category = "custom"
)

// Severity orders notification urgency. Higher values are more urgent.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "LOW"
}

// Escalate raises the severity by exactly one level. CRITICAL is absorbing.
func (s Severity) Escalate() Severity {
	if s >= SeverityCritical {
		return SeverityCritical
	}
	return s + 1
}

// ParseSeverity maps a stored severity name back to its level.
// Unknown names default to LOW.
func ParseSeverity(name string) Severity {
	for sev, n := range severityNames {
		if n == name {
			return sev
		}
	}
	return SeverityLow
}

// Payload carries the rendered content of a notification.
type Payload struct {
	Subject  string                 `json:"subject"`
	Body     string                 `json:"body"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NotificationRecord is one unit of outbound communication.
//
// Created PENDING by the ingestion pipeline; mutated only by the batch
// dispatcher (SENT/FAILED transitions and retry bookkeeping) and by read
// acknowledgment. Once terminal FAILED, RetryCount is frozen and
// NextAttemptAt cleared; once SENT, NextAttemptAt is cleared.
type NotificationRecord struct {
	ID            string     `json:"id"`
	RecipientID   string     `json:"recipientId"`
	Category      Category   `json:"category"`
	Channel       Channel    `json:"channel"`
	Severity      Severity   `json:"severity"`
	Payload       Payload    `json:"payload"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ReadAt        *time.Time `json:"readAt,omitempty"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	RetryCount    int        `json:"retryCount"`
	LastError     string     `json:"lastError,omitempty"`
}

// Unread reports whether the record has not been acknowledged by its
// recipient. READ is a one-way side transition independent of delivery.
func (r *NotificationRecord) Unread() bool {
	return r.Status != StatusRead
}
