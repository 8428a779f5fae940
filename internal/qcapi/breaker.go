package qcapi

import (
	"fmt"
	"sync"
	"time"
)

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

func (s circuitState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the client circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures to open (default: 5)
	SuccessThreshold int           // consecutive half-open successes to close (default: 2)
	Cooldown         time.Duration // wait before probing half-open (default: 30s)
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// CircuitOpenError reports a request blocked by the open breaker.
type CircuitOpenError struct {
	RetryIn time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("platform circuit open, retry in %s", e.RetryIn.Round(time.Second))
}

type breaker struct {
	config BreakerConfig

	mu          sync.Mutex
	state       circuitState
	failures    int
	successes   int
	lastFailure time.Time
}

func newBreaker(config BreakerConfig) *breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultBreakerConfig().SuccessThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &breaker{config: config}
}

// allow checks whether a request may proceed.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		if elapsed := time.Since(b.lastFailure); elapsed >= b.config.Cooldown {
			b.state = stateHalfOpen
			b.successes = 0
			return nil
		}
		return &CircuitOpenError{RetryIn: b.config.Cooldown - time.Since(b.lastFailure)}
	case stateHalfOpen:
		return nil
	}
	return nil
}

// mark records a request outcome; nil marks success.
func (b *breaker) mark(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		switch b.state {
		case stateHalfOpen:
			b.successes++
			if b.successes >= b.config.SuccessThreshold {
				b.state = stateClosed
				b.failures = 0
			}
		case stateClosed:
			b.failures = 0
		}
		return
	}

	b.lastFailure = time.Now()
	switch b.state {
	case stateHalfOpen:
		b.state = stateOpen
	case stateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.state = stateOpen
		}
	}
}
