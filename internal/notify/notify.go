// Package notify publishes domain events to the optional event transports:
// a Redis Stream for alerts and MQTT for vehicle status changes.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	commonredis "yield/common/redis"
)

const (
	KindAlertRaised       = "alert.raised"
	KindAlertAcknowledged = "alert.acknowledged"
	KindVehicleStatus     = "vehicle.status_changed"
)

// Event is a published notification. Subject is the id of the alert or unit.
type Event struct {
	Kind       string         `json:"kind"`
	Subject    string         `json:"subject"`
	ActorID    string         `json:"actor_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filter forwards only events whose kind is listed.
type Filter struct {
	Next  Publisher
	Kinds map[string]bool
}

func (f Filter) Publish(ctx context.Context, ev Event) error {
	if !f.Kinds[ev.Kind] {
		return nil
	}
	return f.Next.Publish(ctx, ev)
}

// StreamPublisher appends events to a Redis Stream.
type StreamPublisher struct {
	client commonredis.StreamAdder
	stream string
	maxLen int64
}

func NewStreamPublisher(client *goredis.Client, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, ev Event) error {
	if _, err := commonredis.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, ev.Kind, ev); err != nil {
		return fmt.Errorf("publish %s to stream %s: %w", ev.Kind, p.stream, err)
	}
	return nil
}

// MQTTSender is the subset of common/mqtt.Client used here.
type MQTTSender interface {
	Publish(topic string, retained bool, payload []byte, timeout time.Duration) error
}

// MQTTPublisher publishes to <prefix>/<subject>/<kind>. Status events are
// retained so late subscribers see the current state.
type MQTTPublisher struct {
	client  MQTTSender
	prefix  string
	timeout time.Duration
}

func NewMQTTPublisher(client MQTTSender, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, timeout: 5 * time.Second}
}

func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s/%s", p.prefix, ev.Subject, ev.Kind)
	return p.client.Publish(topic, ev.Kind == KindVehicleStatus, payload, p.timeout)
}

// Logged logs publish failures and always returns nil.
type Logged struct {
	Next   Publisher
	Logger *zap.Logger
}

func (l Logged) Publish(ctx context.Context, ev Event) error {
	if err := l.Next.Publish(ctx, ev); err != nil {
		l.Logger.Warn("event publish failed",
			zap.String("kind", ev.Kind),
			zap.String("subject", ev.Subject),
			zap.Error(err),
		)
	}
	return nil
}
