package service

import (
	"errors"
	"fmt"

	"github.com/notifyhub/syften-relay/internal/domain"
)

// Batch-level rejections, checked before anything is validated or published.
var (
	ErrEmptyBody   = errors.New("no body provided")
	ErrInvalidJSON = errors.New("invalid JSON")
	ErrNotArray    = errors.New("payload must be a list of items")
	ErrEmptyBatch  = errors.New("no items provided")
)

// ItemError is the validation failure of one element of a batch.
type ItemError struct {
	Index int
	Err   *domain.SchemaError
}

// BatchError is returned when at least one element of a batch is invalid.
// Nothing from the batch has been published.
type BatchError struct {
	Total int
	Items []ItemError
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch rejected: %d of %d items invalid", len(e.Items), e.Total)
}

func (e *BatchError) Is(target error) bool { return target == domain.ErrInvalidItem }

// PublishError is returned when one or more publishes of a batch failed.
// Items that were published before the failure stay published, so a client
// retrying the whole batch may enqueue duplicates.
type PublishError struct {
	Total  int
	Failed int
	// Err is the first failure observed.
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: %d of %d items failed: %v", e.Failed, e.Total, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
