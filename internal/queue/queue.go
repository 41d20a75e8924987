// Package queue abstracts the durable at-least-once transport between the
// ingest side and the dispatch side.
//
// Drivers:
//
//	pubsub  Google Cloud Pub/Sub (server-side redelivery and backoff)
//	kafka   Kafka consumer group; nacked messages are retried in place
//	memory  in-process channel; for local runs and tests, not durable
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrQueueFull = errors.New("queue is at capacity, try again later")
	ErrClosed    = errors.New("queue is closed")
)

// Message is one delivery of a published payload.
type Message struct {
	ID              string
	Data            []byte
	Attributes      map[string]string
	PublishTime     time.Time
	DeliveryAttempt int
}

// Outcome tells the transport what to do with a message after handling.
type Outcome int

const (
	// Ack removes the message permanently.
	Ack Outcome = iota
	// Nack makes the message eligible for redelivery.
	Nack
)

func (o Outcome) String() string {
	if o == Ack {
		return "ack"
	}
	return "nack"
}

// Handler processes a single message synchronously and reports the outcome.
// Transports may call Handle from several goroutines at once.
type Handler interface {
	Handle(ctx context.Context, msg Message) Outcome
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) Outcome

func (f HandlerFunc) Handle(ctx context.Context, msg Message) Outcome { return f(ctx, msg) }

// Publisher sends payloads to a fixed topic. Safe for concurrent use.
type Publisher interface {
	// Publish blocks until the transport confirms the message and returns
	// its id, when the transport assigns one.
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
	Close() error
}

// Subscriber delivers messages from a fixed subscription.
type Subscriber interface {
	// Receive blocks, invoking h for each message, until ctx is cancelled
	// (returns nil) or the subscription fails (returns the cause).
	Receive(ctx context.Context, h Handler) error
	Close() error
}

// Backoff returns the redelivery delay for the given 1-based attempt.
//
//	attempt 1 → backoff[0]
//	attempt 2 → backoff[1]
//	attempt N ≥ len(backoff) → last entry (clamped)
func Backoff(backoff []time.Duration, attempt int) time.Duration {
	if len(backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoff) {
		idx = len(backoff) - 1
	}
	return backoff[idx]
}
