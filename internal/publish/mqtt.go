// Package publish forwards recorded moderation actions to an MQTT broker so
// dashboards and other services can follow them.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modwarden/internal/config"
	"modwarden/internal/modules/audit"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrPublishTimeout = errors.New("mqtt publish timed out")
	ErrNotConnected   = errors.New("mqtt broker not connected")
)

// Broker is the part of mqtt.Client the publisher uses.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
}

type Payload struct {
	EventID     string `json:"event_id"`
	GuildID     string `json:"guild_id"`
	ActionType  string `json:"action_type"`
	ModeratorID string `json:"moderator_id"`
	TargetID    string `json:"target_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Details     string `json:"details,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// MQTTPublisher implements audit.Publisher.
type MQTTPublisher struct {
	broker  Broker
	client  mqtt.Client
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

var _ audit.Publisher = (*MQTTPublisher)(nil)

// Connect dials the broker described by cfg. A failed first connect is
// logged and retried in the background by the client.
func Connect(cfg config.MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	clientID := fmt.Sprintf("%s_%s", cfg.ClientID, uuid.NewString())
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("mqtt connected", zap.String("client_id", clientID))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(timeoutOf(cfg)) && token.Error() != nil {
		logger.Warn("mqtt connect failed", zap.Error(token.Error()))
	}

	p := NewMQTTPublisher(client, cfg.TopicPrefix, timeoutOf(cfg), logger)
	p.client = client
	return p
}

func NewMQTTPublisher(broker Broker, prefix string, timeout time.Duration, logger *zap.Logger) *MQTTPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTPublisher{broker: broker, prefix: strings.Trim(prefix, "/"), timeout: timeout, logger: logger}
}

func (p *MQTTPublisher) Publish(ctx context.Context, event audit.Event) error {
	data, err := json.Marshal(NewPayload(event))
	if err != nil {
		return fmt.Errorf("encode moderation event: %w", err)
	}

	topic := p.Topic(event.Entry.GuildID, event.Entry.ActionType)
	// a queued publish would hold the command for the full timeout
	if !p.broker.IsConnectionOpen() {
		return fmt.Errorf("%w: %s", ErrNotConnected, topic)
	}
	token := p.broker.Publish(topic, 0, false, data)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	case <-ctx.Done():
		return ctx.Err()
	}

	p.logger.Debug("moderation event published", zap.String("topic", topic), zap.String("event_id", event.ID))
	return nil
}

// Topic is <prefix>/<guild>/<action slug>, e.g. modwarden/123/auto-unmute.
func (p *MQTTPublisher) Topic(guildID, actionType string) string {
	parts := []string{guildID, Slug(actionType)}
	if p.prefix != "" {
		parts = append([]string{p.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

func (p *MQTTPublisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

func NewPayload(event audit.Event) Payload {
	entry := event.Entry
	return Payload{
		EventID:     event.ID,
		GuildID:     entry.GuildID,
		ActionType:  entry.ActionType,
		ModeratorID: entry.ModeratorID,
		TargetID:    entry.TargetID,
		Reason:      entry.Reason,
		Details:     entry.Details,
		Timestamp:   entry.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Slug lowercases and joins words with "-". MQTT wildcards and separators
// are dropped.
func Slug(actionType string) string {
	var b strings.Builder
	for _, word := range strings.Fields(strings.ToLower(strings.ReplaceAll(actionType, "_", " "))) {
		word = strings.Map(func(r rune) rune {
			switch r {
			case '/', '+', '#':
				return -1
			}
			return r
		}, word)
		if word == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('-')
		}
		b.WriteString(word)
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

func timeoutOf(cfg config.MQTTConfig) time.Duration {
	if cfg.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}
