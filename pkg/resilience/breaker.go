package resilience

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState is the circuit state for one service.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitOpenError rejects a call while a service's circuit is open.
type CircuitOpenError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s (retry in %s)", e.Service, e.RetryAfter.Round(time.Second))
}

// Breaker is a per-service circuit breaker. Closed is normal operation;
// after threshold consecutive failures the circuit opens and calls are
// rejected immediately; once the recovery timeout elapses exactly one trial
// call passes through, and its outcome decides between Closed and Open.
type Breaker struct {
	service     string
	threshold   int
	recovery    time.Duration
	now         func() time.Time
	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker for a service.
func NewBreaker(service string, threshold int, recovery time.Duration) *Breaker {
	return &Breaker{
		service:   service,
		threshold: threshold,
		recovery:  recovery,
		now:       time.Now,
		state:     StateClosed,
	}
}

// Allow checks whether a call may proceed. It returns a *CircuitOpenError
// when the circuit is open or a half-open trial is already in flight.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed >= b.recovery {
			b.state = StateHalfOpen
			return nil
		}
		return &CircuitOpenError{Service: b.service, RetryAfter: b.recovery - elapsed}
	default: // HalfOpen: the single trial call is already out
		return &CircuitOpenError{Service: b.service, RetryAfter: b.recovery}
	}
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
}

// RecordFailure counts a failure. A failed half-open trial reopens the
// circuit and restarts the recovery timer; in the closed state the circuit
// opens once the threshold of consecutive failures is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	if b.state == StateHalfOpen {
		b.state = StateOpen
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
	}
}

// State returns the current circuit state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
