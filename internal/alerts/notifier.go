// internal/alerts/notifier.go
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/logger"
	"ihydro/internal/common/metrics"
	"ihydro/internal/models"
)

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"

	StatusSent       = "sent"
	StatusFailed     = "failed"
	StatusSuppressed = "suppressed"

	cooldownKeyPrefix = "ihydro:alert:cooldown:"
)

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type NotifierConfig struct {
	Cooldown   time.Duration
	SMSEnabled bool
	TopicARN   string
	Phone      string

	EmailEnabled bool
	FromEmail    string
	To           []string
}

// Notifier delivers new alerts over SNS and SES. Each metric is announced at
// most once per cooldown window on each channel; the window is tracked in
// Redis so several monitor instances share it.
type Notifier struct {
	config *NotifierConfig
	redis  *redis.Client
	sns    SNSService
	ses    SESService
	logger logger.Logger
	now    func() time.Time
}

// NewNotifier creates a notifier. rdb, snsClient and sesClient may be nil to
// disable cooldown tracking or the corresponding channel.
func NewNotifier(cfg *NotifierConfig, rdb *redis.Client, snsClient SNSService, sesClient SESService, log logger.Logger) *Notifier {
	return &Notifier{
		config: cfg,
		redis:  rdb,
		sns:    snsClient,
		ses:    sesClient,
		logger: log.WithFields(map[string]interface{}{"component": "alert-notifier"}),
		now:    time.Now,
	}
}

type channel struct {
	name string
	send func(context.Context, Alert) error
}

func (n *Notifier) channels() []channel {
	var out []channel
	if n.config.SMSEnabled && n.sns != nil {
		out = append(out, channel{name: ChannelSMS, send: n.sendSMS})
	}
	if n.config.EmailEnabled && n.ses != nil && len(n.config.To) > 0 {
		out = append(out, channel{name: ChannelEmail, send: n.sendEmail})
	}
	return out
}

// Notify sends each alert on every channel whose cooldown is not active. A
// failed delivery releases only that channel's cooldown so the next evaluation
// retries it without repeating the channels that succeeded.
func (n *Notifier) Notify(ctx context.Context, alerts []Alert) ([]models.Notification, error) {
	var (
		out  []models.Notification
		errs []error
	)

	channels := n.channels()
	for _, a := range alerts {
		for _, ch := range channels {
			fresh, err := n.acquire(ctx, a.Metric, ch.name)
			if err != nil {
				n.logger.Warn("cooldown check failed, sending anyway", map[string]interface{}{
					"metric":  a.Metric,
					"channel": ch.name,
					"error":   err.Error(),
				})
				fresh = true
			}
			if !fresh {
				out = append(out, n.record(a, ch.name, StatusSuppressed))
				continue
			}

			if err := ch.send(ctx, a); err != nil {
				errs = append(errs, apperrors.NewNotificationSendFailedError(ch.name, err))
				out = append(out, n.record(a, ch.name, StatusFailed))
				n.release(ctx, a.Metric, ch.name)
				continue
			}
			out = append(out, n.record(a, ch.name, StatusSent))
		}
	}

	return out, errors.Join(errs...)
}

// Resolve clears the cooldown of metrics that are back in range, so a new
// excursion is announced immediately.
func (n *Notifier) Resolve(ctx context.Context, active []Alert) {
	if n.redis == nil {
		return
	}
	firing := make(map[models.Metric]bool, len(active))
	for _, a := range active {
		firing[a.Metric] = true
	}
	for _, m := range models.AllMetrics {
		if !firing[m] {
			n.release(ctx, m, ChannelSMS, ChannelEmail)
		}
	}
}

func cooldownKey(m models.Metric, channel string) string {
	return cooldownKeyPrefix + string(m) + ":" + channel
}

func (n *Notifier) acquire(ctx context.Context, m models.Metric, channel string) (bool, error) {
	if n.redis == nil || n.config.Cooldown <= 0 {
		return true, nil
	}
	return n.redis.SetNX(ctx, cooldownKey(m, channel), n.now().UTC().Format(time.RFC3339), n.config.Cooldown).Result()
}

func (n *Notifier) release(ctx context.Context, m models.Metric, channels ...string) {
	if n.redis == nil {
		return
	}
	keys := make([]string, len(channels))
	for i, ch := range channels {
		keys[i] = cooldownKey(m, ch)
	}
	if err := n.redis.Del(ctx, keys...).Err(); err != nil {
		n.logger.Warn("failed to release alert cooldown", map[string]interface{}{
			"metric": m,
			"error":  err.Error(),
		})
	}
}

func (n *Notifier) sendSMS(ctx context.Context, a Alert) error {
	input := &sns.PublishInput{
		Message: aws.String("iHydro: " + a.Message),
	}
	if n.config.TopicARN != "" {
		input.TopicArn = aws.String(n.config.TopicARN)
		input.Subject = aws.String(subject(a))
	} else {
		input.PhoneNumber = aws.String(n.config.Phone)
	}
	_, err := n.sns.Publish(ctx, input)
	return err
}

func (n *Notifier) sendEmail(ctx context.Context, a Alert) error {
	body := fmt.Sprintf("%s\n\nMeasured at %s.\nRecommended range: %s.",
		a.Message,
		n.now().UTC().Format(time.RFC1123),
		strings.TrimSpace(fmt.Sprintf("%s-%s %s", formatNumber(a.Range.Min), formatNumber(a.Range.Max), a.Range.Unit)),
	)
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.config.FromEmail),
		Destination: &types.Destination{
			ToAddresses: n.config.To,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject(a))},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	return err
}

func (n *Notifier) record(a Alert, channel, status string) models.Notification {
	if channel != "" {
		metrics.NotificationsSent.WithLabelValues(channel, status).Inc()
	}
	return models.Notification{
		ID:      uuid.New().String(),
		Metric:  a.Metric,
		Channel: channel,
		Status:  status,
		Message: a.Message,
		SentAt:  n.now().UTC().Format(time.RFC3339),
	}
}

func subject(a Alert) string {
	return fmt.Sprintf("iHydro alert: %s %s", a.Metric, a.Direction)
}
