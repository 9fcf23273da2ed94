package channels

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"notify-engine/internal/common/errors"
	"notify-engine/internal/common/logger"
	"notify-engine/internal/common/validation"
	"notify-engine/internal/models"
)

// SNSService is the slice of the SNS client the SMS sender uses.
// Defined for mocking.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SMSSender struct {
	client   SNSService
	senderID string
	logger   logger.Logger
}

func NewSMSSender(ctx context.Context, region, senderID string, log logger.Logger) (*SMSSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SMSSender{
		client:   sns.NewFromConfig(awsCfg),
		senderID: senderID,
		logger:   log.WithFields(map[string]interface{}{"channel": "SMS"}),
	}, nil
}

// NewSMSSenderWithClient wires an explicit SNS client, used in tests.
func NewSMSSenderWithClient(client SNSService, senderID string, log logger.Logger) *SMSSender {
	return &SMSSender{
		client:   client,
		senderID: senderID,
		logger:   log.WithFields(map[string]interface{}{"channel": "SMS"}),
	}
}

func (s *SMSSender) Channel() models.Channel {
	return models.ChannelSMS
}

func (s *SMSSender) Send(ctx context.Context, recipient *models.Recipient, msg *Message) error {
	if recipient.Phone == "" {
		return errors.NewPermanentDeliveryError("SMS", "recipient has no phone number")
	}
	if !validation.ValidatePhone(recipient.Phone) {
		return errors.NewPermanentDeliveryError("SMS", "invalid phone number: "+recipient.Phone)
	}

	// SMS carries subject plus body in one message
	text := msg.Subject
	if msg.Body != "" {
		text += "\n" + msg.Body
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(recipient.Phone),
		Message:     aws.String(text),
	}
	if s.senderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.senderID),
			},
		}
	}

	_, err := s.client.Publish(ctx, input)
	if err != nil {
		return errors.NewTransientDeliveryError("SMS", err)
	}

	s.logger.Debug("sms sent", map[string]interface{}{
		"to":             recipient.Phone,
		"notificationId": msg.NotificationID,
	})
	return nil
}
