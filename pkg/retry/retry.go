package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
)

// NonRetryableError marks a failure that Do returns at once.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable stops Do from retrying err. A nil err stays nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err carries a NonRetryableError.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config bounds an exponential retry run.
type Config struct {
	MaxAttempts  int           // 0 runs fn once
	InitialDelay time.Duration // wait after the first failure
	MaxDelay     time.Duration // cap on any single wait
	Multiplier   float64       // growth per failure, 2 when unset
	AddJitter    bool          // stretch each wait by up to a quarter
	Clock        clock.Clock   // nil means the wall clock
}

// Quick suits setup steps that follow a fresh connection, such as provisioning a
// stream: many short attempts.
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

// Exponential grows the wait by Factor after every failure, capped at Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  bool
}

// Delay returns the wait after the given number of consecutive failures.
func (e Exponential) Delay(failures int) time.Duration {
	if failures <= 0 || e.Initial <= 0 {
		return 0
	}

	d := float64(e.Initial)
	for i := 1; i < failures && d < float64(e.Max); i++ {
		d *= e.Factor
	}
	if d > float64(e.Max) {
		d = float64(e.Max)
	}

	delay := time.Duration(d)
	if e.Jitter && delay >= 4 {
		delay += rand.N(delay / 4)
	}
	return delay
}

func (cfg Config) backoff() (Exponential, error) {
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 || cfg.Multiplier < 0 {
		return Exponential{}, errors.New("retry: delays and multiplier cannot be negative")
	}

	b := Exponential{
		Initial: cfg.InitialDelay,
		Max:     cfg.MaxDelay,
		Factor:  min(cfg.Multiplier, 1000),
		Jitter:  cfg.AddJitter,
	}
	if b.Initial == 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Max == 0 {
		b.Max = 5 * time.Second
	}
	if b.Factor == 0 {
		b.Factor = 2.0
	}
	if b.Max < b.Initial {
		return Exponential{}, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return b, nil
}

// Do runs fn until it succeeds, fails with a NonRetryableError, runs out of
// attempts or ctx ends. Waits between attempts follow cfg's exponential backoff.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	b, err := cfg.backoff()
	if err != nil {
		return err
	}
	attempts := max(cfg.MaxAttempts, 1)
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if IsNonRetryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == attempts {
			break
		}
		if err := Wait(ctx, clk, b.Delay(attempt)); err != nil {
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, err)
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", attempts, lastErr)
}

// DoWithResult is Do for functions that also produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
