package channels

import (
	"context"
	goerrors "errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify-engine/internal/common/errors"
	"notify-engine/internal/common/logger"
	"notify-engine/internal/models"
)

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       int
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls++
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{}, nil
}

func TestSMSSend_Success(t *testing.T) {
	mock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			assert.Equal(t, "+31611111111", *params.PhoneNumber)
			assert.Contains(t, *params.Message, "Invoice overdue")
			return &sns.PublishOutput{}, nil
		},
	}
	sender := NewSMSSenderWithClient(mock, "notify", logger.NewTestLogger(t))

	err := sender.Send(context.Background(), &models.Recipient{ID: "u1", Phone: "+31611111111"}, testMessage())
	assert.NoError(t, err)
	assert.Equal(t, 1, mock.calls)
}

func TestSMSSend_MissingPhoneIsPermanent(t *testing.T) {
	mock := &MockSNSService{}
	sender := NewSMSSenderWithClient(mock, "notify", logger.NewTestLogger(t))

	err := sender.Send(context.Background(), &models.Recipient{ID: "u1"}, testMessage())
	require.Error(t, err)
	assert.True(t, errors.IsPermanentDelivery(err))
	assert.Equal(t, 0, mock.calls)
}

func TestSMSSend_InvalidPhoneIsPermanent(t *testing.T) {
	mock := &MockSNSService{}
	sender := NewSMSSenderWithClient(mock, "notify", logger.NewTestLogger(t))

	err := sender.Send(context.Background(), &models.Recipient{ID: "u1", Phone: "call me"}, testMessage())
	assert.True(t, errors.IsPermanentDelivery(err))
}

func TestSMSSend_ProviderFailureIsTransient(t *testing.T) {
	mock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, goerrors.New("throttled")
		},
	}
	sender := NewSMSSenderWithClient(mock, "notify", logger.NewTestLogger(t))

	err := sender.Send(context.Background(), &models.Recipient{ID: "u1", Phone: "+31611111111"}, testMessage())
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}
