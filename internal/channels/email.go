package channels

import (
	"context"
	goerrors "errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"notify-engine/internal/common/errors"
	"notify-engine/internal/common/logger"
	"notify-engine/internal/common/validation"
	"notify-engine/internal/models"
)

// SESService is the slice of the SES client the email sender uses.
// Defined for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type EmailSender struct {
	client    SESService
	fromEmail string
	logger    logger.Logger
}

func NewEmailSender(ctx context.Context, region, fromEmail string, log logger.Logger) (*EmailSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &EmailSender{
		client:    ses.NewFromConfig(awsCfg),
		fromEmail: fromEmail,
		logger:    log.WithFields(map[string]interface{}{"channel": "EMAIL"}),
	}, nil
}

// NewEmailSenderWithClient wires an explicit SES client, used in tests.
func NewEmailSenderWithClient(client SESService, fromEmail string, log logger.Logger) *EmailSender {
	return &EmailSender{
		client:    client,
		fromEmail: fromEmail,
		logger:    log.WithFields(map[string]interface{}{"channel": "EMAIL"}),
	}
}

func (e *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

func (e *EmailSender) Send(ctx context.Context, recipient *models.Recipient, msg *Message) error {
	if recipient.Email == "" {
		return errors.NewPermanentDeliveryError("EMAIL", "recipient has no email address")
	}
	if !validation.ValidateEmail(recipient.Email) {
		return errors.NewPermanentDeliveryError("EMAIL", "invalid email address: "+recipient.Email)
	}

	_, err := e.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{recipient.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body)},
				Html: &types.Content{Data: aws.String(msg.Body)},
			},
		},
		Source: aws.String(e.fromEmail),
	})
	if err != nil {
		if isPermanentSESError(err) {
			return errors.NewPermanentDeliveryError("EMAIL", err.Error())
		}
		return errors.NewTransientDeliveryError("EMAIL", err)
	}

	e.logger.Debug("email sent", map[string]interface{}{
		"to":             recipient.Email,
		"notificationId": msg.NotificationID,
	})
	return nil
}

// Address-level SES rejections will never succeed on retry.
func isPermanentSESError(err error) bool {
	var rejected *types.MessageRejected
	var notVerified *types.MailFromDomainNotVerifiedException
	return goerrors.As(err, &rejected) || goerrors.As(err, &notVerified)
}
