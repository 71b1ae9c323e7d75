package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, recovery time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker("chatgpt", threshold, recovery)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 300*time.Second)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State(), "still closed after %d failures", i+1)
	}

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	var openErr *CircuitOpenError
	require.ErrorAs(t, b.Allow(), &openErr)
	assert.Equal(t, "chatgpt", openErr.Service)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, 300*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAllowsSingleTrial(t *testing.T) {
	b, now := newTestBreaker(1, 300*time.Second)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	// Before the recovery timeout every call is rejected.
	*now = now.Add(299 * time.Second)
	assert.Error(t, b.Allow())

	// After it elapses exactly one trial passes, regardless of how much
	// further time has gone by.
	*now = now.Add(2 * time.Hour)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Error(t, b.Allow(), "second call during the trial is rejected")
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(1, 300*time.Second)
	b.RecordFailure()
	*now = now.Add(301 * time.Second)
	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, 300*time.Second)
	b.RecordFailure()
	*now = now.Add(301 * time.Second)
	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	// Recovery timer restarted at the trial failure.
	*now = now.Add(299 * time.Second)
	assert.Error(t, b.Allow())
	*now = now.Add(2 * time.Second)
	assert.NoError(t, b.Allow())
}
