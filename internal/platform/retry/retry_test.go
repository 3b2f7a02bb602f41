package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codegouvfr/sill-web/internal/platform/retry"
	"github.com/jonboulle/clockwork"
)

var fastPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   1 * time.Millisecond,
	RateLimitBackoff: 5 * time.Millisecond,
}

func alwaysRetry(error) retry.Action { return retry.Retry }
func alwaysStop(error) retry.Action  { return retry.Stop }
func alwaysAfter(error) retry.Action { return retry.After }

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, alwaysRetry, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if val != 42 || calls != 3 {
		t.Fatalf("expected 42 after 3 calls, got %d after %d", val, calls)
	}
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, alwaysStop, func(context.Context) error {
		calls++
		return permanent
	})
	var permErr *retry.PermanentError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermanentError, got %T: %v", err, err)
	}
	if !errors.Is(err, permanent) {
		t.Fatalf("expected wrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_ExhaustedRetries(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, alwaysRetry, func(context.Context) error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("expected wrapped transient error, got %v", err)
	}
	if calls != fastPolicy.MaxAttempts {
		t.Fatalf("expected %d calls, got %d", fastPolicy.MaxAttempts, calls)
	}
}

func TestDo_BackoffSchedule(t *testing.T) {
	var waits []time.Duration
	p := retry.Policy{
		MaxAttempts:      4,
		InitialBackoff:   time.Millisecond,
		RateLimitBackoff: 10 * time.Millisecond,
		MaxBackoff:       3 * time.Millisecond,
		OnRetry:          func(_ int, _ error, backoff time.Duration) { waits = append(waits, backoff) },
	}

	_ = retry.DoVoid(context.Background(), p, alwaysRetry, func(context.Context) error { return errors.New("x") })
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("expected %v, got %v", want, waits)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, waits)
		}
	}
}

func TestDo_RateLimitedUsesLongerBackoff(t *testing.T) {
	var waits []time.Duration
	p := fastPolicy
	p.MaxAttempts = 2
	p.OnRetry = func(_ int, _ error, backoff time.Duration) { waits = append(waits, backoff) }

	_ = retry.DoVoid(context.Background(), p, alwaysAfter, func(context.Context) error { return errors.New("429") })
	if len(waits) != 1 || waits[0] != fastPolicy.RateLimitBackoff {
		t.Fatalf("expected [%v], got %v", fastPolicy.RateLimitBackoff, waits)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := fastPolicy
	p.Clock = clock
	p.InitialBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- retry.DoVoid(ctx, p, alwaysRetry, func(context.Context) error { return errors.New("x") })
	}()

	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestDo_FakeClockAdvance(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := fastPolicy
	p.Clock = clock
	p.MaxAttempts = 2
	p.InitialBackoff = time.Minute

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- retry.DoVoid(context.Background(), p, alwaysRetry, func(context.Context) error {
			calls++
			if calls == 1 {
				return errors.New("x")
			}
			return nil
		})
	}()

	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)

	if err := <-done; err != nil {
		t.Fatalf("expected success after advance, got %v", err)
	}
}
