package channels

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"notify-engine/internal/common/errors"
	"notify-engine/internal/common/logger"
	"notify-engine/internal/models"
)

// InAppSender publishes notifications on a per-recipient Redis channel.
// Connected frontends subscribe to "<prefix>:<recipientId>".
type InAppSender struct {
	client      *redis.Client
	topicPrefix string
	logger      logger.Logger
}

func NewInAppSender(client *redis.Client, topicPrefix string, log logger.Logger) *InAppSender {
	return &InAppSender{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      log.WithFields(map[string]interface{}{"channel": "IN_APP"}),
	}
}

func (s *InAppSender) Channel() models.Channel {
	return models.ChannelInApp
}

func (s *InAppSender) Send(ctx context.Context, recipient *models.Recipient, msg *Message) error {
	payload, err := json.Marshal(map[string]interface{}{
		"id":       msg.NotificationID,
		"subject":  msg.Subject,
		"body":     msg.Body,
		"category": msg.Category,
		"severity": msg.Severity.String(),
		"metadata": msg.Metadata,
		"sentAt":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.NewPermanentDeliveryError("IN_APP", "marshal payload: "+err.Error())
	}

	topic := s.topicPrefix + ":" + recipient.ID
	if err := s.client.Publish(ctx, topic, string(payload)).Err(); err != nil {
		return errors.NewTransientDeliveryError("IN_APP", err)
	}

	s.logger.Debug("in-app notification published", map[string]interface{}{
		"topic":          topic,
		"notificationId": msg.NotificationID,
	})
	return nil
}
