package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds configuration for the Kafka driver.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// KeyAttribute names the attribute used as the partition key.
	KeyAttribute string
	// Backoff is applied between in-place retries of a nacked message.
	Backoff []time.Duration
}

func (c KafkaConfig) validate(needGroup bool) error {
	if len(c.Brokers) == 0 {
		return errors.New("at least one Kafka broker address is required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	if needGroup && c.ConsumerGroup == "" {
		return errors.New("kafka consumer group is required")
	}
	return nil
}

// KafkaPublisher writes messages to a single topic, keyed by the configured
// attribute so items sharing a routing key land on the same partition.
type KafkaPublisher struct {
	writer  *kafka.Writer
	keyAttr string
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if err := cfg.validate(false); err != nil {
		return nil, err
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		keyAttr: cfg.KeyAttribute,
	}, nil
}

// Publish writes one message synchronously. Kafka does not return an id on
// write, so the returned id is empty.
func (p *KafkaPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	msg := kafka.Message{
		Value:   data,
		Headers: toHeaders(attributes),
	}
	if p.keyAttr != "" {
		if key := attributes[p.keyAttr]; key != "" {
			msg.Key = []byte(key)
		}
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write to kafka: %w", err)
	}
	return "", nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaSubscriber consumes a topic as part of a consumer group. Offsets are
// committed only after Ack. A nacked message is handed to the handler again
// after the backoff, since committing a later offset would implicitly ack it.
type KafkaSubscriber struct {
	reader  *kafka.Reader
	backoff []time.Duration
}

func NewKafkaSubscriber(cfg KafkaConfig) (*KafkaSubscriber, error) {
	if err := cfg.validate(true); err != nil {
		return nil, err
	}
	return &KafkaSubscriber{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.ConsumerGroup,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
			MaxWait:  500 * time.Millisecond,
		}),
		backoff: cfg.Backoff,
	}, nil
}

func (s *KafkaSubscriber) Receive(ctx context.Context, h Handler) error {
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch from kafka: %w", err)
		}

		msg := fromKafka(m)
		for attempt := 1; ; attempt++ {
			msg.DeliveryAttempt = attempt
			if h.Handle(ctx, msg) == Ack {
				break
			}
			// Left uncommitted on shutdown, so the group redelivers it.
			if !sleep(ctx, Backoff(s.backoff, attempt)) {
				return nil
			}
		}

		if err := s.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit kafka offset: %w", err)
		}
	}
}

func (s *KafkaSubscriber) Close() error {
	return s.reader.Close()
}

func fromKafka(m kafka.Message) Message {
	attrs := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		attrs[h.Key] = string(h.Value)
	}
	return Message{
		ID:          m.Topic + "/" + strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10),
		Data:        m.Value,
		Attributes:  attrs,
		PublishTime: m.Time,
	}
}

func toHeaders(attributes map[string]string) []kafka.Header {
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(attributes[k])})
	}
	return headers
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var (
	_ Publisher  = (*KafkaPublisher)(nil)
	_ Subscriber = (*KafkaSubscriber)(nil)
)
