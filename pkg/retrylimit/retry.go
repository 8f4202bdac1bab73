package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrAttemptsExhausted is returned, wrapping the last failure, once every
// attempt has failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Class tells Do what to do with a failed attempt.
type Class int

const (
	Retry Class = iota
	RateLimited
	Fatal
)

// Classifier maps an attempt error to a Class.
type Classifier func(error) Class

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// FatalError marks an error that must not be retried.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Permanent wraps err so that Do returns it after the current attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// StatusClassifier classifies by HTTP status: 429 is RateLimited, 5xx and
// unknown statuses are retried, other 4xx are Fatal. status returns 0 when
// err carries no status. A nil status looks for StatusCoder in the chain.
func StatusClassifier(status func(error) int) Classifier {
	if status == nil {
		status = statusOf
	}
	return func(err error) Class {
		var fatal *FatalError
		if errors.As(err, &fatal) {
			return Fatal
		}
		code := status(err)
		switch {
		case code == http.StatusTooManyRequests:
			return RateLimited
		case code >= 400 && code < 500:
			return Fatal
		default:
			return Retry
		}
	}
}

func statusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

type Config struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
	Multiplier     float64
	Jitter         bool
	Classify       Classifier
	Logger         zerolog.Logger
}

// DefaultConfig suits interactive sends: a handful of quick attempts.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    4,
		InitialDelay:   250 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		RateLimitDelay: time.Second,
		Multiplier:     2,
		Jitter:         true,
		Classify:       StatusClassifier(nil),
		Logger:         zerolog.Nop(),
	}
}

// Do calls fn until it succeeds, fails fatally, ctx ends or MaxAttempts is
// reached. Each attempt waits on lim first when lim is non-nil.
func Do(ctx context.Context, lim *AdaptiveLimiter, cfg Config, fn func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Classify == nil {
		cfg.Classify = StatusClassifier(nil)
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	delay := cfg.InitialDelay
	var last error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx)
		if last == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				cfg.Logger.Debug().Int("attempt", attempt).Msg("retry succeeded")
			}
			return nil
		}

		wait := delay
		switch cfg.Classify(last) {
		case Fatal:
			return last
		case RateLimited:
			if lim != nil {
				lim.Throttled()
				cfg.Logger.Warn().Int("attempt", attempt).Float64("limit", lim.Limit()).Msg("rate limited")
			}
			wait = cfg.RateLimitDelay
		default:
			cfg.Logger.Warn().Err(last).Int("attempt", attempt).Dur("backoff", delay).Msg("attempt failed")
			delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.Jitter {
			wait = jitter(wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, cfg.MaxAttempts, last)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter adds up to 25% to d.
func jitter(d time.Duration) time.Duration {
	if q := int64(d / 4); q > 0 {
		return d + time.Duration(rand.Int64N(q))
	}
	return d
}
