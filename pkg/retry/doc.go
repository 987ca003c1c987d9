// Package retry provides backoff helpers for transient failures.
//
// Do runs an operation a bounded number of times with exponential backoff and
// optional jitter. It is used for short provisioning steps such as creating a
// JetStream stream right after connecting:
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    _, err := js.CreateOrUpdateStream(ctx, cfg)
//	    return err
//	})
//
// Linear computes the capped linear delay used between delivery retries:
//
//	backoff := retry.Linear{Base: 500 * time.Millisecond, Max: 10 * time.Second}
//	backoff.Delay(3) // 1.5s
//
// Forever retries until success or cancellation at a fixed interval, which is how
// forced reconnects keep trying:
//
//	err := retry.Forever(ctx, clk, 5*time.Second, connect, func(n int, err error) {
//	    logger.Warn("reconnect attempt failed", "attempt", n, "error", err)
//	})
//
// All waits go through a clock.Clock so tests can drive them with clock.NewMock().
// Every helper stops as soon as its context is cancelled.
package retry
