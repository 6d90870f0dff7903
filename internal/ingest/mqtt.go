// internal/ingest/mqtt.go
package ingest

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"ihydro/internal/common/logger"
	"ihydro/internal/common/schema"
)

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// MQTTSubscriber feeds readings published by devices into the pipeline.
type MQTTSubscriber struct {
	config   *MQTTConfig
	client   mqtt.Client
	pipeline *Pipeline
	logger   logger.Logger
	now      func() time.Time
}

func NewMQTTSubscriber(cfg *MQTTConfig, pipeline *Pipeline, log logger.Logger) *MQTTSubscriber {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)
	return newMQTTSubscriber(cfg, mqtt.NewClient(opts), pipeline, log)
}

func newMQTTSubscriber(cfg *MQTTConfig, client mqtt.Client, pipeline *Pipeline, log logger.Logger) *MQTTSubscriber {
	return &MQTTSubscriber{
		config:   cfg,
		client:   client,
		pipeline: pipeline,
		logger:   log.WithFields(map[string]interface{}{"component": "mqtt", "topic": cfg.Topic}),
		now:      time.Now,
	}
}

// Run connects, subscribes and blocks until ctx is cancelled.
func (s *MQTTSubscriber) Run(ctx context.Context) error {
	token := s.client.Connect()
	if !waitToken(ctx, token) {
		// stops the background connect retries
		s.client.Disconnect(0)
		return ctx.Err()
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer s.client.Disconnect(250)

	token = s.client.Subscribe(s.config.Topic, s.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(ctx, msg.Payload())
	})
	if !waitToken(ctx, token) {
		return ctx.Err()
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt subscribe: %w", token.Error())
	}
	s.logger.Info("subscribed", nil)

	<-ctx.Done()
	return ctx.Err()
}

func (s *MQTTSubscriber) handle(ctx context.Context, payload []byte) {
	r, err := DecodeUpload(payload, s.now())
	if err != nil {
		s.logger.Warn("dropping invalid device payload", map[string]interface{}{
			"path":  schema.Path(err),
			"error": err,
		})
		return
	}
	if _, err := s.pipeline.Accept(ctx, IngressMQTT, r); err != nil {
		s.logger.Error("failed to ingest device reading", map[string]interface{}{"error": err})
	}
}

func waitToken(ctx context.Context, token mqtt.Token) bool {
	select {
	case <-token.Done():
		return true
	case <-ctx.Done():
		return false
	}
}
