package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/notifyhub/syften-relay/internal/queue"
)

// ErrSubscriptionEnded is recorded when a subscriber returns without error
// although nobody cancelled it, e.g. because its transport was closed.
var ErrSubscriptionEnded = errors.New("subscription ended unexpectedly")

// Subscription is the lifecycle handle of a running pull loop. It is never
// restarted: once Done is closed, Err reports why.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start runs sub.Receive(ctx, h) on a dedicated goroutine. The transport
// calls h concurrently, up to the subscriber's in-flight ceiling.
func Start(ctx context.Context, sub queue.Subscriber, h queue.Handler, logger *zap.Logger) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		logger.Info("subscription started")

		err := sub.Receive(ctx, h)
		switch {
		case ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)):
			logger.Info("subscription cancelled")
		case err == nil:
			s.err = ErrSubscriptionEnded
			logger.Error("subscription terminated", zap.Error(s.err))
		default:
			s.err = err
			logger.Error("subscription terminated", zap.Error(err))
		}
	}()

	return s
}

// Stop cancels the pull loop and blocks until in-flight handlers returned.
// Safe to call more than once.
func (s *Subscription) Stop() {
	s.cancel()
	<-s.done
}

// Done is closed once the pull loop has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the reason the loop terminated, or nil while it is running or
// after a clean cancellation.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
