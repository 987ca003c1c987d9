package retry

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Linear is a capped linear backoff: the delay after n consecutive failures is
// Base*n, never more than Max.
type Linear struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait after the given number of consecutive failures.
func (l Linear) Delay(failures int) time.Duration {
	if failures <= 0 || l.Base <= 0 {
		return 0
	}
	if l.Max > 0 && int64(failures) >= int64(l.Max/l.Base) {
		return l.Max
	}
	return l.Base * time.Duration(failures)
}

// Wait blocks for d on clk or until ctx is done, returning ctx.Err() in the latter case.
func Wait(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := clk.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Forever calls fn until it succeeds or ctx is done, waiting interval between
// attempts. onFailure, if set, sees every failed attempt (1-based). It returns nil
// on success and ctx.Err() on cancellation.
func Forever(ctx context.Context, clk clock.Clock, interval time.Duration,
	fn func(context.Context) error, onFailure func(attempt int, err error)) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if onFailure != nil {
			onFailure(attempt, err)
		}

		if err := Wait(ctx, clk, interval); err != nil {
			return err
		}
	}
}
