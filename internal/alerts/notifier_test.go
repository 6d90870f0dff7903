package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/logger"
	"ihydro/internal/models"
	"ihydro/pkg/thresholds"
)

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func createTestConfig() *NotifierConfig {
	return &NotifierConfig{
		Cooldown:     10 * time.Minute,
		SMSEnabled:   true,
		Phone:        "+66800000000",
		EmailEnabled: true,
		FromEmail:    "alerts@ihydro.local",
		To:           []string{"grower@ihydro.local"},
	}
}

func phAlert() []Alert {
	return Evaluate(models.Reading{Temperature: 28, Humidity: 70, TDS: 1000, PH: 7.5}, thresholds.Default())
}

func okSNS(calls *int) *MockSNSService {
	return &MockSNSService{PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
		*calls++
		return &sns.PublishOutput{}, nil
	}}
}

func okSES(calls *int) *MockSESService {
	return &MockSESService{SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		*calls++
		return &ses.SendEmailOutput{}, nil
	}}
}

func TestNotifier_SendsOncePerCooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var smsCalls, emailCalls int
	n := NewNotifier(createTestConfig(), rdb, okSNS(&smsCalls), okSES(&emailCalls), logger.NewTestLogger(t))
	ctx := context.Background()

	sent, err := n.Notify(ctx, phAlert())
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, StatusSent, sent[0].Status)
	assert.Equal(t, ChannelSMS, sent[0].Channel)
	assert.Equal(t, ChannelEmail, sent[1].Channel)
	assert.Equal(t, models.MetricPH, sent[0].Metric)

	again, err := n.Notify(ctx, phAlert())
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, StatusSuppressed, again[0].Status)
	assert.Equal(t, StatusSuppressed, again[1].Status)
	assert.Equal(t, 1, smsCalls)
	assert.Equal(t, 1, emailCalls)

	mr.FastForward(11 * time.Minute)
	_, err = n.Notify(ctx, phAlert())
	require.NoError(t, err)
	assert.Equal(t, 2, smsCalls)
}

func TestNotifier_ResolveClearsCooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var smsCalls, emailCalls int
	n := NewNotifier(createTestConfig(), rdb, okSNS(&smsCalls), okSES(&emailCalls), logger.NewTestLogger(t))
	ctx := context.Background()

	_, err := n.Notify(ctx, phAlert())
	require.NoError(t, err)
	assert.True(t, mr.Exists(cooldownKeyPrefix+"ph:sms"))
	assert.True(t, mr.Exists(cooldownKeyPrefix+"ph:email"))

	n.Resolve(ctx, nil)
	assert.False(t, mr.Exists(cooldownKeyPrefix+"ph:sms"))
	assert.False(t, mr.Exists(cooldownKeyPrefix+"ph:email"))

	_, err = n.Notify(ctx, phAlert())
	require.NoError(t, err)
	assert.Equal(t, 2, smsCalls)
}

func TestNotifier_FailureReleasesOnlyFailedChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var smsAttempts int
	snsClient := &MockSNSService{PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
		smsAttempts++
		return nil, errors.New("throttled")
	}}
	var emailCalls int
	n := NewNotifier(createTestConfig(), rdb, snsClient, okSES(&emailCalls), logger.NewTestLogger(t))
	ctx := context.Background()

	sent, err := n.Notify(ctx, phAlert())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotificationSendFailed))
	require.Len(t, sent, 2)
	assert.Equal(t, StatusFailed, sent[0].Status)
	assert.Equal(t, StatusSent, sent[1].Status)
	assert.False(t, mr.Exists(cooldownKeyPrefix+"ph:sms"))
	assert.True(t, mr.Exists(cooldownKeyPrefix+"ph:email"))

	for i := 0; i < 4; i++ {
		sent, err = n.Notify(ctx, phAlert())
		require.Error(t, err)
		require.Len(t, sent, 2)
		assert.Equal(t, StatusFailed, sent[0].Status)
		assert.Equal(t, StatusSuppressed, sent[1].Status)
	}
	assert.Equal(t, 5, smsAttempts)
	assert.Equal(t, 1, emailCalls)
}

func TestNotifier_TopicAndEmailPayload(t *testing.T) {
	cfg := createTestConfig()
	cfg.TopicARN = "arn:aws:sns:us-east-1:123456789012:ihydro-alerts"

	var published *sns.PublishInput
	var emailed *ses.SendEmailInput
	snsClient := &MockSNSService{PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
		published = params
		return &sns.PublishOutput{}, nil
	}}
	sesClient := &MockSESService{SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		emailed = params
		return &ses.SendEmailOutput{}, nil
	}}

	n := NewNotifier(cfg, nil, snsClient, sesClient, logger.NewTestLogger(t))
	_, err := n.Notify(context.Background(), phAlert())
	require.NoError(t, err)

	require.NotNil(t, published)
	assert.Equal(t, cfg.TopicARN, *published.TopicArn)
	assert.Nil(t, published.PhoneNumber)
	assert.Equal(t, "iHydro: pH 7.5 outside recommended range (5.8-6.8)", *published.Message)

	require.NotNil(t, emailed)
	assert.Equal(t, []string{"grower@ihydro.local"}, emailed.Destination.ToAddresses)
	assert.Equal(t, "iHydro alert: ph high", *emailed.Message.Subject.Data)
	assert.Contains(t, *emailed.Message.Body.Text.Data, "Recommended range: 5.8-6.8")
}

func TestNotifier_CooldownStoreDown(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	var smsCalls, emailCalls int

	cfg := createTestConfig()
	cfg.EmailEnabled = false
	n := NewNotifier(cfg, rdb, okSNS(&smsCalls), okSES(&emailCalls), logger.NewTestLogger(t))
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	mock.ExpectSetNX(cooldownKeyPrefix+"ph:sms", fixed.Format(time.RFC3339), cfg.Cooldown).SetErr(errors.New("connection refused"))

	sent, err := n.Notify(context.Background(), phAlert())
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, StatusSent, sent[0].Status)
	assert.Equal(t, 1, smsCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
