package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/syften-relay/internal/domain"
	"github.com/notifyhub/syften-relay/internal/notifier"
	"github.com/notifyhub/syften-relay/internal/queue"
	"github.com/notifyhub/syften-relay/internal/ratelimiter"
	"github.com/notifyhub/syften-relay/internal/render"
	"github.com/notifyhub/syften-relay/internal/repository"
)

// Reasons reported to the dispatch hooks and stored with dropped or retried
// messages.
const (
	ReasonUndecodable = "undecodable"
	ReasonInvalidItem = "invalid_item"
	ReasonAPIError    = "api_error"
	ReasonTransport   = "transport"
	ReasonCancelled   = "cancelled"
)

const recordTimeout = 5 * time.Second

// DispatchHooks carries the metric callbacks injected by main, so the
// dispatcher stays metrics-agnostic. Any of them may be nil.
type DispatchHooks struct {
	OnDelivered func(latency time.Duration)
	OnDropped   func(reason string)
	OnRetry     func(reason string)
}

// Dispatcher handles one queue message at a time: decode, validate, render,
// deliver. It reports an explicit outcome and never acks or nacks itself.
//
//	undecodable or invalid payload → Ack (retrying cannot fix it)
//	channel error of any kind      → Nack (the transport redelivers)
//	delivered                      → Ack
type Dispatcher struct {
	channel     notifier.Channel
	destination string
	limiter     *ratelimiter.DestinationLimiters
	deliveries  repository.DeliveryRepository
	hooks       DispatchHooks
	logger      *zap.Logger
}

// NewDispatcher constructs a dispatcher posting to destination. limiter and
// deliveries are optional (nil disables rate limiting and the delivery log).
func NewDispatcher(
	ch notifier.Channel,
	destination string,
	limiter *ratelimiter.DestinationLimiters,
	deliveries repository.DeliveryRepository,
	logger *zap.Logger,
	hooks DispatchHooks,
) *Dispatcher {
	return &Dispatcher{
		channel:     ch,
		destination: destination,
		limiter:     limiter,
		deliveries:  deliveries,
		hooks:       hooks,
		logger:      logger,
	}
}

// Handle implements queue.Handler.
func (d *Dispatcher) Handle(ctx context.Context, msg queue.Message) queue.Outcome {
	start := time.Now()
	log := d.logger.With(
		zap.String("message_id", msg.ID),
		zap.Int("delivery_attempt", msg.DeliveryAttempt),
	)

	it, err := domain.DecodeItem(msg.Data)
	if err != nil {
		reason := ReasonInvalidItem
		if errors.Is(err, domain.ErrUndecodable) {
			reason = ReasonUndecodable
		}
		log.Warn("dropping message",
			zap.String("reason", reason),
			zap.String("filter", msg.Attributes[domain.AttrFilter]),
			zap.Int("bytes", len(msg.Data)),
			zap.Error(err),
		)
		d.record(ctx, log, delivery(msg, it, domain.OutcomeDropped, err))
		if d.hooks.OnDropped != nil {
			d.hooks.OnDropped(reason)
		}
		return queue.Ack
	}

	log = log.With(
		zap.String("filter", it.Filter),
		zap.String("backend", it.Backend),
		zap.String("item_url", it.ItemURL),
	)

	n := render.Render(it)

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, d.destination); err != nil {
			// ctx cancelled while waiting: the consumer is shutting down.
			log.Info("delivery interrupted, message will be redelivered", zap.Error(err))
			if d.hooks.OnRetry != nil {
				d.hooks.OnRetry(ReasonCancelled)
			}
			return queue.Nack
		}
	}

	if err := d.channel.Deliver(ctx, d.destination, n); err != nil {
		reason := ReasonTransport
		var apiErr *notifier.APIError
		if errors.As(err, &apiErr) {
			reason = ReasonAPIError
			log.Error("channel rejected notification",
				zap.String("code", apiErr.Code),
				zap.Int("status", apiErr.Status),
				zap.Duration("retry_after", apiErr.RetryAfter),
				zap.Error(err),
			)
		} else {
			log.Error("failed to deliver notification", zap.Error(err))
		}
		d.record(ctx, log, delivery(msg, it, domain.OutcomeRetry, err))
		if d.hooks.OnRetry != nil {
			d.hooks.OnRetry(reason)
		}
		return queue.Nack
	}

	elapsed := time.Since(start)
	d.record(ctx, log, delivery(msg, it, domain.OutcomeDelivered, nil))
	if d.hooks.OnDelivered != nil {
		d.hooks.OnDelivered(elapsed)
	}
	log.Info("notification delivered", zap.Duration("latency", elapsed))
	return queue.Ack
}

// record writes to the delivery log. Failures are logged and never change
// the message outcome.
func (d *Dispatcher) record(ctx context.Context, log *zap.Logger, rec *domain.Delivery) {
	if d.deliveries == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := d.deliveries.Record(rctx, rec); err != nil {
		log.Warn("failed to record delivery", zap.String("outcome", string(rec.Outcome)), zap.Error(err))
	}
}

// delivery builds a log record. For payloads that did not decode the
// routing metadata comes from the message attributes.
func delivery(msg queue.Message, it domain.Item, outcome domain.Outcome, cause error) *domain.Delivery {
	rec := &domain.Delivery{
		MessageID: msg.ID,
		Filter:    it.Filter,
		Backend:   it.Backend,
		ItemURL:   it.ItemURL,
		Outcome:   outcome,
	}
	if rec.Filter == "" {
		rec.Filter = msg.Attributes[domain.AttrFilter]
	}
	if rec.Backend == "" {
		rec.Backend = msg.Attributes[domain.AttrBackend]
	}
	if cause != nil {
		s := cause.Error()
		rec.ErrorMessage = &s
	}
	return rec
}

// compile-time check that Dispatcher implements queue.Handler
var _ queue.Handler = (*Dispatcher)(nil)
