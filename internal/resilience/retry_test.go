package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

// failing returns fn that fails with err until call number okAt (never when
// okAt is 0) and counts calls.
func failing(err error, okAt int, calls *int) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		*calls++
		if okAt > 0 && *calls >= okAt {
			return *calls, nil
		}
		return *calls, err
	}
}

func TestDoVal_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(3), failing(nil, 1, &calls))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || val != 1 {
		t.Errorf("expected 1 call returning 1, got %d calls returning %d", calls, val)
	}
}

func TestDoVal_SuccessAfterRetry(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(3),
		failing(NewTransientError(errors.New("over query limit"), 0), 3, &calls))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || val != 3 {
		t.Errorf("expected 3 calls, got %d (value %d)", calls, val)
	}
}

func TestDoVal_ExhaustsRetriesAndKeepsLastValue(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(3),
		failing(NewTransientError(errors.New("always fails"), 503), 0, &calls))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if val != 3 {
		t.Errorf("expected value of last attempt (3), got %d", val)
	}
}

func TestDoVal_SingleAttemptDisablesRetry(t *testing.T) {
	var calls int
	_, _ = DoVal(context.Background(), fastRetry(1), failing(NewTransientError(errors.New("fail"), 500), 0, &calls))
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_ZeroAttemptsRunsOnce(t *testing.T) {
	var calls int
	_, _ = DoVal(context.Background(), RetryConfig{}, failing(NewTransientError(errors.New("fail"), 500), 0, &calls))
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	_, err := DoVal(context.Background(), fastRetry(3), failing(errors.New("request denied"), 0, &calls))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry for non-transient), got %d", calls)
	}
}

func TestDoVal_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
	}

	_, err := DoVal(ctx, cfg, func(context.Context) (struct{}, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return struct{}{}, NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls before cancel took effect, got %d", calls)
	}
}

func TestDoVal_CustomShouldRetry(t *testing.T) {
	var calls int
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "retry me" }

	_, err := DoVal(context.Background(), cfg, failing(errors.New("retry me"), 2, &calls))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDoVal_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	var calls int
	_, _ = DoVal(context.Background(), cfg, failing(NewTransientError(errors.New("fail"), 500), 0, &calls))

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected OnRetry attempts [1 2], got %v", attempts)
	}
}

func TestBackoff_Capped(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		Multiplier:     2.0,
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for n, w := range want {
		if got := backoff(n, cfg); got != w {
			t.Errorf("retry %d: expected %v, got %v", n, w, got)
		}
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	}
	for i := 0; i < 100; i++ {
		d := backoff(0, cfg)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v outside [50ms, 150ms]", d)
		}
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 200, 2000, 3.0, 0)
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 200*time.Millisecond {
		t.Errorf("InitialBackoff = %v", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 2*time.Second {
		t.Errorf("MaxBackoff = %v", cfg.MaxBackoff)
	}
	if cfg.Multiplier != 3.0 {
		t.Errorf("Multiplier = %v", cfg.Multiplier)
	}
	if cfg.JitterFraction != 0 {
		t.Errorf("JitterFraction = %v", cfg.JitterFraction)
	}

	def := FromRetryConfig(0, 0, 0, 0, -1)
	if def.MaxAttempts != DefaultRetryConfig().MaxAttempts {
		t.Errorf("expected default MaxAttempts, got %d", def.MaxAttempts)
	}
	if def.JitterFraction != DefaultRetryConfig().JitterFraction {
		t.Errorf("expected default JitterFraction, got %v", def.JitterFraction)
	}
}
