package poller

import (
	"context"
	"time"
)

// wakeups emits immediately and then once per interval until ctx is done.
// Ticks that are not received in time are dropped.
func wakeups(ctx context.Context, interval time.Duration) <-chan time.Time {
	c := make(chan time.Time, 1)
	c <- time.Now()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(c)

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case c <- t:
				default:
				}
			}
		}
	}()

	return c
}
