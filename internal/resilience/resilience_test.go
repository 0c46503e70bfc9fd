package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls, retries int
	cfg := fastRetry(3)
	cfg.OnRetry = func(int, error) { retries++ }

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), http.StatusServiceUnavailable)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("still busy"), http.StatusTooManyRequests)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, fastRetry(5), func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("busy"), http.StatusBadGateway)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	got, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("timeout"), http.StatusGatewayTimeout)
		}
		return "page text", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "page text", got)
}

func TestWithAttempts(t *testing.T) {
	assert.Equal(t, 7, DefaultRetryConfig().WithAttempts(7).MaxAttempts)
	assert.Equal(t, 3, DefaultRetryConfig().WithAttempts(0).MaxAttempts)
}

func TestComputeBackoff_Capped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, computeBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, computeBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, computeBackoff(5, cfg))
}

func TestStatusError(t *testing.T) {
	err := StatusError("mistral", http.StatusTooManyRequests, []byte(" slow down \n"))
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "mistral: API returned 429: slow down")

	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)

	err = StatusError("mistral", http.StatusUnauthorized, []byte(`{"error":"bad key"}`))
	assert.False(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(eris.Wrap(NewTransientError(errors.New("x"), 0), "wrapped")))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsTransient(errors.New("invalid PDF")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2025, 11, 13, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "ocr", FailureThreshold: 2, ResetTimeout: time.Minute})
	cb.nowFunc = func() time.Time { return now }

	fail := func(_ context.Context) error { return errors.New("down") }
	for range 2 {
		_ = cb.Execute(context.Background(), fail) //nolint:errcheck
	}
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not run while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func(_ context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 11, 13, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "ocr", FailureThreshold: 1, ResetTimeout: time.Minute})
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), func(_ context.Context) error { return errors.New("down") }) //nolint:errcheck
	now = now.Add(2 * time.Minute)

	_, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
		return 0, errors.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_ShouldTripFiltersErrors(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("ocr")
	cfg.FailureThreshold = 1
	cfg.ShouldTrip = IsTransient
	cb := NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(_ context.Context) error { return errors.New("bad request") }) //nolint:errcheck
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
