package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config tunes the retry policy and the per-service circuit breakers.
type Config struct {
	MaxRetries       int           `json:"max_retries" mapstructure:"max_retries"`
	BaseDelay        time.Duration `json:"base_delay" mapstructure:"base_delay"`
	MaxDelay         time.Duration `json:"max_delay" mapstructure:"max_delay"`
	Multiplier       float64       `json:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64       `json:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int           `json:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout" mapstructure:"recovery_timeout"`
}

// DefaultConfig returns the standard retry/breaker tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       5,
		BaseDelay:        time.Second,
		MaxDelay:         60 * time.Second,
		Multiplier:       2.0,
		JitterFraction:   0.2,
		FailureThreshold: 3,
		RecoveryTimeout:  300 * time.Second,
	}
}

// Manager wraps driver operations with failure classification, bounded
// exponential backoff, and a circuit breaker per service key.
type Manager struct {
	cfg      Config
	log      zerolog.Logger
	mu       sync.Mutex
	breakers map[string]*Breaker

	// OnRetry, when set, observes each retry decision (metrics hook).
	OnRetry func(service string, kind Kind, attempt int)

	sleep func(ctx context.Context, d time.Duration) error
	randf func() float64
}

// NewManager creates a resilience manager.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 60 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 300 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		log:      log.With().Str("component", "resilience").Logger(),
		breakers: make(map[string]*Breaker),
		sleep:    sleepCtx,
		randf:    rand.Float64,
	}
}

// Execute runs op under the retry policy for the given service key.
// Session expiry and service refusals propagate immediately; network,
// timeout, element-not-found and unknown failures retry with backoff up to
// MaxRetries. Calls are rejected with *CircuitOpenError while the service's
// circuit is open.
func (m *Manager) Execute(ctx context.Context, service string, op func(context.Context) error) error {
	br := m.breaker(service)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := br.Allow(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			br.RecordSuccess()
			return nil
		}
		br.RecordFailure()

		kind := Classify(lastErr)
		if !kind.Retryable() {
			m.log.Warn().
				Str("service", service).
				Str("kind", kind.String()).
				Err(lastErr).
				Msg("Non-retryable failure")
			return lastErr
		}
		if attempt >= m.cfg.MaxRetries {
			return fmt.Errorf("%s failed after %d attempts: %w", service, attempt+1, lastErr)
		}

		delay := m.jitter(m.Delay(attempt))
		m.log.Warn().
			Str("service", service).
			Str("kind", kind.String()).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(lastErr).
			Msg("Retrying after failure")
		if m.OnRetry != nil {
			m.OnRetry(service, kind, attempt+1)
		}
		if err := m.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Delay returns the pre-jitter backoff delay for a 0-based attempt:
// min(base * multiplier^attempt, max).
func (m *Manager) Delay(attempt int) time.Duration {
	d := float64(m.cfg.BaseDelay) * math.Pow(m.cfg.Multiplier, float64(attempt))
	if d > float64(m.cfg.MaxDelay) {
		return m.cfg.MaxDelay
	}
	return time.Duration(d)
}

// BreakerState reports the circuit state for a service key.
func (m *Manager) BreakerState(service string) BreakerState {
	return m.breaker(service).State()
}

func (m *Manager) jitter(d time.Duration) time.Duration {
	if m.cfg.JitterFraction <= 0 {
		return d
	}
	// Spread uniformly within ±jitterFraction of the base delay.
	spread := (m.randf()*2 - 1) * m.cfg.JitterFraction
	return time.Duration(float64(d) * (1 + spread))
}

func (m *Manager) breaker(service string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	br, ok := m.breakers[service]
	if !ok {
		br = NewBreaker(service, m.cfg.FailureThreshold, m.cfg.RecoveryTimeout)
		m.breakers[service] = br
	}
	return br
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
