package channels

import (
	"context"

	"notify-engine/internal/common/errors"
	"notify-engine/internal/models"
)

// Message is the rendered content handed to a channel adapter.
type Message struct {
	NotificationID string
	Subject        string
	Body           string
	Category       models.Category
	Severity       models.Severity
	Metadata       map[string]interface{}
}

// Sender delivers a message to one recipient over one channel.
// Transient failures come back as retryable StandardErrors, permanent
// ones as non-retryable.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, recipient *models.Recipient, msg *Message) error
}

// Registry maps channels to their configured senders.
type Registry struct {
	senders map[models.Channel]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[models.Channel]Sender)}
}

func (r *Registry) Register(s Sender) {
	r.senders[s.Channel()] = s
}

// Get returns the sender for ch, or a CHANNEL_UNAVAILABLE error when
// no adapter is configured for it.
func (r *Registry) Get(ch models.Channel) (Sender, error) {
	s, ok := r.senders[ch]
	if !ok {
		return nil, errors.NewChannelUnavailableError(string(ch))
	}
	return s, nil
}

func (r *Registry) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}
