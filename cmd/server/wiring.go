package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/notifyhub/syften-relay/internal/config"
	"github.com/notifyhub/syften-relay/internal/domain"
	"github.com/notifyhub/syften-relay/internal/notifier"
	"github.com/notifyhub/syften-relay/internal/queue"
)

// transport holds the queue endpoints for the configured role. Publisher is
// nil unless the process ingests, Subscriber nil unless it dispatches.
// Memory is set for the in-process driver only.
type transport struct {
	Publisher  queue.Publisher
	Subscriber queue.Subscriber
	Memory     *queue.MemoryBroker
}

func newTransport(ctx context.Context, cfg *config.Config) (*transport, error) {
	t := &transport{}

	switch cfg.QueueDriver {
	case config.DriverMemory:
		t.Memory = queue.NewMemoryBroker(cfg.MemoryQueueCapacity, cfg.MaxInFlight, cfg.RetryBackoff)
		t.Publisher = t.Memory
		t.Subscriber = t.Memory

	case config.DriverPubSub:
		if cfg.Ingests() {
			topic, err := cfg.Topic()
			if err != nil {
				return nil, err
			}
			client, err := pubsub.NewClient(ctx, topic.Project)
			if err != nil {
				return nil, fmt.Errorf("create pubsub publisher client: %w", err)
			}
			t.Publisher = queue.NewPubSubPublisher(client, topic.ID)
		}
		if cfg.Dispatches() {
			sub, err := cfg.Subscription()
			if err != nil {
				t.close()
				return nil, err
			}
			client, err := pubsub.NewClient(ctx, sub.Project)
			if err != nil {
				t.close()
				return nil, fmt.Errorf("create pubsub subscriber client: %w", err)
			}
			t.Subscriber = queue.NewPubSubSubscriber(client, sub.ID, cfg.MaxInFlight)
		}

	case config.DriverKafka:
		kcfg := queue.KafkaConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
			KeyAttribute:  domain.AttrFilter,
			Backoff:       cfg.RetryBackoff,
		}
		if cfg.Ingests() {
			pub, err := queue.NewKafkaPublisher(kcfg)
			if err != nil {
				return nil, err
			}
			t.Publisher = pub
		}
		if cfg.Dispatches() {
			sub, err := queue.NewKafkaSubscriber(kcfg)
			if err != nil {
				t.close()
				return nil, err
			}
			t.Subscriber = sub
		}

	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.QueueDriver)
	}

	return t, nil
}

// close releases both endpoints; the memory broker is closed once.
func (t *transport) close() error {
	var first error
	if t.Publisher != nil {
		first = t.Publisher.Close()
	}
	if t.Subscriber != nil && t.Memory == nil {
		if err := t.Subscriber.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newChannel prefers the Web API when a bot token is configured.
func newChannel(cfg *config.Config) notifier.Channel {
	if cfg.SlackBotToken != "" {
		return notifier.NewSlackChannel(cfg.SlackBotToken, notifier.SlackOptions{
			APIURL:  cfg.SlackAPIURL,
			Timeout: cfg.NotifyTimeout,
		})
	}
	return notifier.NewWebhookChannel(cfg.SlackWebhookURL, cfg.NotifyTimeout)
}
