package queue

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher publishes to a Google Cloud Pub/Sub topic. It owns the
// client and closes it on Close.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewPubSubPublisher(client *pubsub.Client, topicID string) *PubSubPublisher {
	return &PubSubPublisher{client: client, topic: client.Topic(topicID)}
}

// Publish sends one message and waits for the server-assigned id.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	id, err := res.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.topic.ID(), err)
	}
	return id, nil
}

// Close flushes buffered messages and releases the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// PubSubSubscriber receives from a Pub/Sub subscription using streaming
// pull. Nacked messages are redelivered by the service according to the
// subscription's retry policy.
type PubSubSubscriber struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
}

// NewPubSubSubscriber bounds the number of unacknowledged messages held by
// the client to maxInFlight, which also bounds concurrent Handle calls.
func NewPubSubSubscriber(client *pubsub.Client, subscriptionID string, maxInFlight int) *PubSubSubscriber {
	sub := client.Subscription(subscriptionID)
	if maxInFlight > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = maxInFlight
	}
	return &PubSubSubscriber{client: client, sub: sub}
}

func (s *PubSubSubscriber) Receive(ctx context.Context, h Handler) error {
	err := s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		msg := Message{
			ID:          m.ID,
			Data:        m.Data,
			Attributes:  m.Attributes,
			PublishTime: m.PublishTime,
		}
		if m.DeliveryAttempt != nil {
			msg.DeliveryAttempt = *m.DeliveryAttempt
		}

		if h.Handle(ctx, msg) == Ack {
			m.Ack()
			return
		}
		m.Nack()
	})
	if err != nil {
		return fmt.Errorf("receive from %s: %w", s.sub.ID(), err)
	}
	return nil
}

func (s *PubSubSubscriber) Close() error {
	return s.client.Close()
}

var (
	_ Publisher  = (*PubSubPublisher)(nil)
	_ Subscriber = (*PubSubSubscriber)(nil)
)
