package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// minRequeueDelay spaces out retries of a redelivery that found the
// buffer full.
const minRequeueDelay = 10 * time.Millisecond

// MemoryBroker is an in-process Publisher and Subscriber backed by a
// buffered channel. Nacked messages are put back after the configured
// backoff, waiting for room if the buffer is full. Messages do not survive
// a restart.
type MemoryBroker struct {
	msgs    chan Message
	workers int
	backoff []time.Duration

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

// NewMemoryBroker creates a broker holding up to capacity messages and
// handling at most workers messages at a time per Receive call.
func NewMemoryBroker(capacity, workers int, backoff []time.Duration) *MemoryBroker {
	if capacity <= 0 {
		capacity = 1000
	}
	if workers <= 0 {
		workers = 1
	}
	return &MemoryBroker{
		msgs:    make(chan Message, capacity),
		workers: workers,
		backoff: backoff,
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Publish places a message on the queue. It is non-blocking: if the buffer
// is full ErrQueueFull is returned immediately rather than blocking the
// caller (the HTTP handler).
func (b *MemoryBroker) Publish(_ context.Context, data []byte, attributes map[string]string) (string, error) {
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}

	msg := Message{
		ID:          uuid.New().String(),
		Data:        append([]byte(nil), data...),
		Attributes:  attrs,
		PublishTime: time.Now().UTC(),
	}
	if err := b.offer(msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (b *MemoryBroker) offer(msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	select {
	case b.msgs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Receive runs the broker's workers until ctx is cancelled. Each worker
// dequeues one message at a time and hands it to h.
func (b *MemoryBroker) Receive(ctx context.Context, h Handler) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, ok := b.dequeue(ctx)
				if !ok {
					return
				}
				msg.DeliveryAttempt++
				if h.Handle(ctx, msg) == Nack {
					b.redeliver(msg)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// dequeue blocks until a message is available or ctx is cancelled.
func (b *MemoryBroker) dequeue(ctx context.Context) (Message, bool) {
	select {
	case msg := <-b.msgs:
		return msg, true
	case <-ctx.Done():
		return Message{}, false
	}
}

func (b *MemoryBroker) redeliver(msg Message) {
	b.schedule(msg, Backoff(b.backoff, msg.DeliveryAttempt))
}

// schedule puts msg back on the queue after delay. While the buffer is full
// the retry is re-armed instead of dropped.
func (b *MemoryBroker) schedule(msg Message, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.timers, t)
		b.mu.Unlock()
		if err := b.offer(msg); errors.Is(err, ErrQueueFull) {
			b.schedule(msg, max(delay, minRequeueDelay))
		}
	})
	b.timers[t] = struct{}{}
}

// Depth returns the number of messages waiting to be received.
func (b *MemoryBroker) Depth() int {
	return len(b.msgs)
}

// Close stops pending redeliveries and rejects further use.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for t := range b.timers {
		t.Stop()
	}
	b.timers = nil
	return nil
}

var (
	_ Publisher  = (*MemoryBroker)(nil)
	_ Subscriber = (*MemoryBroker)(nil)
)
