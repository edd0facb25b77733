package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Retry struct {
	next  Fetcher
	max   int
	delay time.Duration
	log   *zap.Logger
	sleep func(context.Context, time.Duration) error
}

// NewRetry makes up to max+1 attempts with a fixed delay between them.
func NewRetry(next Fetcher, max int, delay time.Duration, log *zap.Logger) *Retry {
	if max < 0 {
		max = 0
	}
	return &Retry{next, max, delay, log, sleepCtx}
}

func (r *Retry) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	var lastErr error
	attempts := 0
	for attempts <= r.max {
		if attempts > 0 {
			if err := r.sleep(ctx, r.delay); err != nil {
				break
			}
		}
		attempts++

		body, err := r.next.Fetch(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil || !Transient(err) {
			break
		}
		r.log.Sugar().Infow("Fetch failed",
			"operation", req.Operation,
			"attempt", attempts,
			"err", err,
		)
	}
	if ctx.Err() == nil && Transient(lastErr) {
		return nil, fmt.Errorf("%s failed after %d attempt(s): %w: %w", req.Operation, attempts, ErrTransient, lastErr)
	}
	return nil, fmt.Errorf("%s failed after %d attempt(s): %w", req.Operation, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
