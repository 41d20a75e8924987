package queue

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// KafkaPublisher/KafkaSubscriber tests cover configuration and message
// mapping. Integration tests with a real Kafka cluster are excluded from
// unit tests.

func TestNewKafkaPublisher_RequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "items"})
	assert.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "items"})
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestNewKafkaSubscriber_RequiresGroup(t *testing.T) {
	_, err := NewKafkaSubscriber(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "items"})
	assert.Error(t, err)
}

func TestKafka_HeaderMapping(t *testing.T) {
	headers := toHeaders(map[string]string{"filter": "f1", "backend": "rss"})
	require.Len(t, headers, 2)
	assert.Equal(t, "backend", headers[0].Key, "headers are written in key order")
	assert.Equal(t, "filter", headers[1].Key)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := fromKafka(kafka.Message{
		Topic:     "items",
		Partition: 2,
		Offset:    41,
		Value:     []byte("payload"),
		Headers:   headers,
		Time:      ts,
	})

	assert.Equal(t, "items/2/41", msg.ID)
	assert.Equal(t, "payload", string(msg.Data))
	assert.Equal(t, map[string]string{"filter": "f1", "backend": "rss"}, msg.Attributes)
	assert.Equal(t, ts, msg.PublishTime)
}

func TestSleep_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.True(t, sleep(context.Background(), time.Millisecond))
}
