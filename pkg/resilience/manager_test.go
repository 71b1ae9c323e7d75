package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(cfg Config) *Manager {
	m := NewManager(cfg, zerolog.Nop())
	m.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	m.randf = func() float64 { return 0.5 } // zero jitter offset
	return m
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	m := newTestManager(DefaultConfig())
	calls := 0
	err := m.Execute(context.Background(), "chatgpt", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	// Two timeouts then success: three attempts total, circuit stays closed.
	m := newTestManager(DefaultConfig())
	calls := 0
	err := m.Execute(context.Background(), "chatgpt", func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return Mark(KindTimeout, errors.New("await completion timed out"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, StateClosed, m.BreakerState("chatgpt"))
}

func TestExecuteNeverRetriesSessionExpired(t *testing.T) {
	m := newTestManager(DefaultConfig())
	calls := 0
	sessionErr := Mark(KindSessionExpired, errors.New("login required"))
	err := m.Execute(context.Background(), "claude", func(ctx context.Context) error {
		calls++
		return sessionErr
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindSessionExpired, Classify(err))
}

func TestExecuteNeverRetriesServiceError(t *testing.T) {
	m := newTestManager(DefaultConfig())
	calls := 0
	err := m.Execute(context.Background(), "gemini", func(ctx context.Context) error {
		calls++
		return Mark(KindServiceError, errors.New("empty response"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.FailureThreshold = 100 // keep the breaker out of this test
	m := newTestManager(cfg)

	calls := 0
	err := m.Execute(context.Background(), "chatgpt", func(ctx context.Context) error {
		calls++
		return Mark(KindNetwork, errors.New("connection reset"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestExecuteRejectsWhenCircuitOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.FailureThreshold = 1
	m := newTestManager(cfg)

	_ = m.Execute(context.Background(), "genspark", func(ctx context.Context) error {
		return Mark(KindNetwork, errors.New("down"))
	})
	require.Equal(t, StateOpen, m.BreakerState("genspark"))

	calls := 0
	err := m.Execute(context.Background(), "genspark", func(ctx context.Context) error {
		calls++
		return nil
	})
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 0, calls, "operation must not run while the circuit is open")
}

func TestExecuteBreakersAreIndependent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.FailureThreshold = 1
	m := newTestManager(cfg)

	_ = m.Execute(context.Background(), "genspark", func(ctx context.Context) error {
		return Mark(KindNetwork, errors.New("down"))
	})
	require.Equal(t, StateOpen, m.BreakerState("genspark"))
	assert.Equal(t, StateClosed, m.BreakerState("chatgpt"))

	err := m.Execute(context.Background(), "chatgpt", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestDelayIsMonotoneAndCapped(t *testing.T) {
	m := newTestManager(DefaultConfig())
	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := m.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, 60*time.Second, "attempt %d", attempt)
		prev = d
	}
	assert.Equal(t, time.Second, m.Delay(0))
	assert.Equal(t, 2*time.Second, m.Delay(1))
	assert.Equal(t, 60*time.Second, m.Delay(9))
}

func TestJitterStaysWithinBounds(t *testing.T) {
	m := NewManager(DefaultConfig(), zerolog.Nop())
	base := 10 * time.Second
	for _, r := range []float64{0, 0.25, 0.5, 0.75, 1} {
		m.randf = func() float64 { return r }
		d := m.jitter(base)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	m := NewManager(DefaultConfig(), zerolog.Nop())
	m.randf = func() float64 { return 0.5 }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Execute(ctx, "chatgpt", func(ctx context.Context) error {
		return Mark(KindTimeout, errors.New("slow"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOnRetryHook(t *testing.T) {
	m := newTestManager(DefaultConfig())
	var seen []Kind
	m.OnRetry = func(service string, kind Kind, attempt int) {
		seen = append(seen, kind)
	}
	calls := 0
	_ = m.Execute(context.Background(), "chatgpt", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return Mark(KindElementNotFound, errors.New("input missing"))
		}
		return nil
	})
	require.Len(t, seen, 1)
	assert.Equal(t, KindElementNotFound, seen[0])
}
