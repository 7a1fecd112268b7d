package exchange

import (
	"context"
	"log"
	"time"

	"github.com/jpillora/backoff"
)

// retryRead runs an idempotent read with exponential backoff. Order
// placement must never go through here; a timed-out placement may have
// reached the venue and blind resubmission would double the position.
func retryRead[T any](ctx context.Context, attempts int, name string, fn func() (T, error)) (T, error) {
	b := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    3 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var zero T
	var err error
	for i := 0; i < attempts; i++ {
		var v T
		v, err = fn()
		if err == nil {
			return v, nil
		}
		if i == attempts-1 {
			break
		}
		d := b.Duration()
		log.Printf("⚠️ Exchange: %s failed (attempt %d/%d), retrying in %s: %v", name, i+1, attempts, d, err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(d):
		}
	}
	return zero, err
}
