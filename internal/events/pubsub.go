package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrTopicRequired = errors.New("pubsub topic is required")

// PubSubPublisher sends events as JSON messages to a Pub/Sub topic.
type PubSubPublisher struct {
	Topic *pubsub.Topic
}

func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{Topic: topic}
}

func (p *PubSubPublisher) Publish(ctx context.Context, ev Event) error {
	if p.Topic == nil {
		return ErrTopicRequired
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result := p.Topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":      string(ev.Kind),
			"attribute": ev.Attribute,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	if p.Topic != nil {
		p.Topic.Stop()
	}
}

func EnsureTopic(ctx context.Context, client *pubsub.Client, topicName string) error {
	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = client.CreateTopic(ctx, topicName)
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

// EnsureTopicWithRetry is used against the emulator, which may still be
// starting when the service boots.
func EnsureTopicWithRetry(ctx context.Context, client *pubsub.Client, topicName string, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := EnsureTopic(ctx, client, topicName); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func EnsureSubscription(ctx context.Context, client *pubsub.Client, topicName, subName, pushEndpoint string) error {
	sub := client.Subscription(subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	cfg := pubsub.SubscriptionConfig{Topic: client.Topic(topicName)}
	if pushEndpoint != "" {
		cfg.PushConfig = pubsub.PushConfig{Endpoint: pushEndpoint}
	}
	_, err = client.CreateSubscription(ctx, subName, cfg)
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}
