package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/notifyhub/syften-relay/internal/render"
)

// Channel abstracts delivery to an external notification service.
// Mocking this interface in tests gives full control over channel behaviour
// without making real HTTP calls.
//
// Deliver returns *APIError when the remote service rejected the request and
// any other error when the request could not be completed.
type Channel interface {
	Deliver(ctx context.Context, destination string, n render.Notification) error
}

// APIError is an error reported by the notification service itself: rate
// limiting, bad credentials, an unknown channel, a 5xx.
type APIError struct {
	// Code is the service's error code, e.g. "channel_not_found".
	Code string
	// Status is the HTTP status code, when one was observed.
	Status int
	// RetryAfter is set when the service asked the caller to slow down.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	switch {
	case e.Status != 0 && e.Code != "":
		return fmt.Sprintf("channel api error: %s (status %d)", e.Code, e.Status)
	case e.Status != 0:
		return fmt.Sprintf("channel api error: status %d", e.Status)
	default:
		return "channel api error: " + e.Code
	}
}
