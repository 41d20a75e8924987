package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// DestinationLimiters holds one token bucket limiter per delivery
// destination (Slack channel). Limiters are created on first use, all with
// the same rate and burst, so a chatty filter routed to one channel does not
// slow down deliveries to another.
type DestinationLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// New creates a DestinationLimiters allowing perSec deliveries per second
// per destination with the given burst. A non-positive perSec disables
// limiting.
func New(perSec float64, burst int) *DestinationLimiters {
	limit := rate.Limit(perSec)
	if perSec <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &DestinationLimiters{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the destination's limiter grants a token.
// Called by the dispatcher immediately before delivering to the channel.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (dl *DestinationLimiters) Wait(ctx context.Context, destination string) error {
	return dl.get(destination).Wait(ctx)
}

func (dl *DestinationLimiters) get(destination string) *rate.Limiter {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	l, ok := dl.limiters[destination]
	if !ok {
		l = rate.NewLimiter(dl.limit, dl.burst)
		dl.limiters[destination] = l
	}
	return l
}
