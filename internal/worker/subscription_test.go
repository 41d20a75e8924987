package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notifyhub/syften-relay/internal/queue"
	"github.com/notifyhub/syften-relay/internal/worker"
)

// stubSubscriber returns err from Receive; when block is set it first waits
// for ctx to be cancelled.
type stubSubscriber struct {
	block bool
	err   error
}

func (s stubSubscriber) Receive(ctx context.Context, _ queue.Handler) error {
	if s.block {
		<-ctx.Done()
	}
	return s.err
}

func (s stubSubscriber) Close() error { return nil }

func waitDone(t *testing.T, sub *worker.Subscription) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not finish")
	}
}

func TestSubscription_StopIsNotAnError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sub := worker.Start(context.Background(), stubSubscriber{block: true}, queue.HandlerFunc(nil), zap.New(core))

	if sub.Err() != nil {
		t.Fatal("running subscription must not report an error")
	}
	sub.Stop()
	sub.Stop()

	if err := sub.Err(); err != nil {
		t.Fatalf("expected nil error after Stop, got %v", err)
	}
	if logs.FilterMessage("subscription cancelled").Len() != 1 {
		t.Fatal("expected cancellation to be logged at info")
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 0 {
		t.Fatal("cancellation must not log at error level")
	}
}

func TestSubscription_ContextCanceledErrorIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := worker.Start(ctx, stubSubscriber{block: true, err: context.Canceled}, queue.HandlerFunc(nil), zap.NewNop())
	cancel()
	waitDone(t, sub)

	if err := sub.Err(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSubscription_UnexpectedTermination(t *testing.T) {
	boom := errors.New("permission denied on subscription")

	tests := []struct {
		name    string
		sub     stubSubscriber
		wantErr error
	}{
		{name: "receive error", sub: stubSubscriber{err: boom}, wantErr: boom},
		{name: "receive returned early", sub: stubSubscriber{}, wantErr: worker.ErrSubscriptionEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			sub := worker.Start(context.Background(), tt.sub, queue.HandlerFunc(nil), zap.New(core))
			waitDone(t, sub)

			if !errors.Is(sub.Err(), tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, sub.Err())
			}
			if logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessage("subscription terminated").Len() != 1 {
				t.Fatal("expected termination to be logged at error level")
			}
		})
	}
}

func TestSubscription_EndToEndWithMemoryBroker(t *testing.T) {
	broker := queue.NewMemoryBroker(10, 2, []time.Duration{10 * time.Millisecond})
	defer broker.Close()

	var attempts atomic.Int32
	handler := queue.HandlerFunc(func(_ context.Context, m queue.Message) queue.Outcome {
		// Fail the first attempt to exercise redelivery.
		if attempts.Add(1) == 1 {
			return queue.Nack
		}
		return queue.Ack
	})

	sub := worker.Start(context.Background(), broker, handler, zap.NewNop())
	defer sub.Stop()

	if _, err := broker.Publish(context.Background(), []byte("x"), nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for attempts.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected redelivery after nack, saw %d attempts", attempts.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
