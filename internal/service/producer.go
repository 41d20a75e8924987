package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/syften-relay/internal/domain"
	"github.com/notifyhub/syften-relay/internal/queue"
)

// ProducerHooks carries the metric callbacks injected by main.
// Any of them may be nil.
type ProducerHooks struct {
	OnBatch         func(items int)
	OnRejected      func(reason string)
	OnPublished     func(latency time.Duration)
	OnPublishFailed func()
}

// Rejection reasons reported to OnRejected.
const (
	RejectEmptyBody   = "empty_body"
	RejectInvalidJSON = "invalid_json"
	RejectNotArray    = "not_array"
	RejectEmptyBatch  = "empty_batch"
	RejectInvalidItem = "invalid_item"
)

// Producer validates inbound batches and publishes each item to the queue.
// HTTP handlers depend on this type, never on the queue directly.
type Producer struct {
	pub         queue.Publisher
	concurrency int
	hooks       ProducerHooks
	logger      *zap.Logger
}

// NewProducer returns a Producer that runs at most concurrency publishes of a
// batch at a time.
func NewProducer(pub queue.Publisher, concurrency int, hooks ProducerHooks, logger *zap.Logger) *Producer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Producer{pub: pub, concurrency: concurrency, hooks: hooks, logger: logger}
}

// Ingest validates body as a batch of items and publishes every item.
// Either every element validates and all are published, or the batch is
// rejected before the first publish. It returns the number of items
// enqueued.
func (p *Producer) Ingest(ctx context.Context, body []byte) (int, error) {
	items, err := ParseBatch(body)
	if err != nil {
		p.rejected(err)
		return 0, err
	}

	if p.hooks.OnBatch != nil {
		p.hooks.OnBatch(len(items))
	}

	if err := p.publishAll(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// ParseBatch decodes body and validates every element. It fails with one of
// the Err* sentinels for a malformed batch, or *BatchError listing every
// invalid element.
func ParseBatch(body []byte) ([]domain.Item, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}

	raw, err := domain.DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	records, ok := raw.([]any)
	if !ok {
		return nil, ErrNotArray
	}
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}

	items := make([]domain.Item, 0, len(records))
	var invalid []ItemError
	for i, rec := range records {
		it, err := domain.ParseItem(rec)
		if err != nil {
			var se *domain.SchemaError
			if !errors.As(err, &se) {
				se = &domain.SchemaError{Fields: []domain.FieldError{{Message: err.Error()}}}
			}
			invalid = append(invalid, ItemError{Index: i, Err: se})
			continue
		}
		items = append(items, it)
	}

	if len(invalid) > 0 {
		return nil, &BatchError{Total: len(records), Items: invalid}
	}
	return items, nil
}

// publishAll publishes every item and waits for all of them. A failing
// publish does not cancel the others.
func (p *Producer) publishAll(ctx context.Context, items []domain.Item) error {
	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	g.SetLimit(p.concurrency)

	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			if err := p.publish(ctx, it); err != nil {
				failed.Add(1)
				if p.hooks.OnPublishFailed != nil {
					p.hooks.OnPublishFailed()
				}
				p.logger.Error("failed to publish item",
					zap.Int("index", i),
					zap.String("filter", it.Filter),
					zap.String("backend", it.Backend),
					zap.Error(err),
				)
				return fmt.Errorf("item %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &PublishError{Total: len(items), Failed: int(failed.Load()), Err: err}
	}
	return nil
}

func (p *Producer) publish(ctx context.Context, it domain.Item) error {
	data, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}

	start := time.Now()
	id, err := p.pub.Publish(ctx, data, it.Attributes())
	if err != nil {
		return err
	}

	if p.hooks.OnPublished != nil {
		p.hooks.OnPublished(time.Since(start))
	}
	p.logger.Debug("item published",
		zap.String("message_id", id),
		zap.String("filter", it.Filter),
		zap.String("backend", it.Backend),
	)
	return nil
}

func (p *Producer) rejected(err error) {
	if p.hooks.OnRejected == nil {
		return
	}
	var reason string
	switch {
	case errors.Is(err, ErrEmptyBody):
		reason = RejectEmptyBody
	case errors.Is(err, ErrInvalidJSON):
		reason = RejectInvalidJSON
	case errors.Is(err, ErrNotArray):
		reason = RejectNotArray
	case errors.Is(err, ErrEmptyBatch):
		reason = RejectEmptyBatch
	default:
		reason = RejectInvalidItem
	}
	p.hooks.OnRejected(reason)
}
