package retrylimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type statusErr int

func (s statusErr) Error() string   { return "status" }
func (s statusErr) StatusCode() int { return int(s) }

func fastConfig(attempts int) Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, fastConfig(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return statusErr(502)
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Do() = %v after %d calls", err, calls)
	}
}

func TestDo_StopsOnFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permanent", Permanent(errors.New("bad input"))},
		{"client status", statusErr(403)},
		{"wrapped client status", errors.Join(errors.New("send"), statusErr(404))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), nil, fastConfig(5), func(context.Context) error {
				calls++
				return tt.err
			})
			if calls != 1 || err == nil || errors.Is(err, ErrAttemptsExhausted) {
				t.Errorf("calls = %d, err = %v", calls, err)
			}
		})
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), nil, fastConfig(3), func(context.Context) error {
		calls++
		return boom
	})
	if calls != 3 || !errors.Is(err, ErrAttemptsExhausted) || !errors.Is(err, boom) {
		t.Errorf("calls = %d, err = %v", calls, err)
	}
}

func TestDo_RateLimitSlowsLimiter(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 1, 20, 1, 0.5)
	calls := 0
	err := Do(context.Background(), lim, fastConfig(3), func(context.Context) error {
		calls++
		if calls == 1 {
			return statusErr(429)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := lim.Limit(); got != 5 {
		t.Errorf("Limit() = %v, want 5 (halved, success inside recovery window)", got)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := Do(ctx, nil, fastConfig(3), func(context.Context) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("err = %v, called = %v", err, called)
	}
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	now := time.Unix(0, 0)
	lim := NewAdaptiveLimiter(2, 1, 3, 1, 0.5)
	lim.now = func() time.Time { return now }

	lim.Throttled()
	lim.Throttled()
	if lim.Limit() != 1 {
		t.Errorf("Limit() = %v, want floor 1", lim.Limit())
	}
	lim.Success()
	if lim.Limit() != 1 {
		t.Error("limit rose inside the recovery window")
	}
	now = now.Add(recoveryWindow + time.Second)
	for range 5 {
		lim.Success()
	}
	if lim.Limit() != 3 {
		t.Errorf("Limit() = %v, want ceiling 3", lim.Limit())
	}
}

func TestStatusClassifier(t *testing.T) {
	classify := StatusClassifier(func(err error) int {
		var s statusErr
		if errors.As(err, &s) {
			return int(s)
		}
		return 0
	})
	tests := []struct {
		err  error
		want Class
	}{
		{statusErr(429), RateLimited},
		{statusErr(500), Retry},
		{statusErr(400), Fatal},
		{errors.New("network"), Retry},
		{Permanent(statusErr(500)), Fatal},
	}
	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
