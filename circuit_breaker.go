package pubquery

import (
	"errors"
	"sync"
	"time"
)

// simple circuit breaker implementation (closed -> open -> half-open -> closed),
// adapted to track the table/query label the last trip or recovery came from,
// so operators can tell which part of the schema is unhealthy instead of just
// "the database" (spec.md §7's backend_failure kind names the failing query,
// but says nothing about the breaker's own state transitions -- this closes
// that gap for anyone watching logs/metrics rather than individual errors).

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

type circuitBreakerConfig struct {
	failureThreshold    int
	openTimeout         time.Duration
	halfOpenMaxInFlight int
	onStateChange       func(state, label string)
}

type circuitBreaker struct {
	mu          sync.Mutex
	state       circuitState
	failures    int
	openedAt    time.Time
	cfg         circuitBreakerConfig
	halfOpenSem chan struct{}

	// lastLabel is the table/query label of the most recent before/after
	// call; a state change reports it to onStateChange, so it names the call
	// that caused the transition.
	lastLabel string
}

var circuitOpenErr = errors.New("circuit breaker is open")

func isCircuitOpenError(err error) bool { return errors.Is(err, circuitOpenErr) }

func newCircuitBreaker(cfg circuitBreakerConfig) *circuitBreaker {
	if cfg.halfOpenMaxInFlight <= 0 {
		cfg.halfOpenMaxInFlight = 1
	}
	cb := &circuitBreaker{state: stateClosed, cfg: cfg}
	cb.halfOpenSem = make(chan struct{}, cfg.halfOpenMaxInFlight)
	return cb
}

func (cb *circuitBreaker) setState(s circuitState) {
	if cb.state == s {
		return
	}
	cb.state = s
	switch s {
	case stateClosed:
		cb.failures = 0
		if cb.cfg.onStateChange != nil {
			cb.cfg.onStateChange("closed", cb.lastLabel)
		}
	case stateOpen:
		cb.openedAt = time.Now()
		if cb.cfg.onStateChange != nil {
			cb.cfg.onStateChange("open", cb.lastLabel)
		}
	case stateHalfOpen:
		// reset semaphore
		cb.halfOpenSem = make(chan struct{}, cb.cfg.halfOpenMaxInFlight)
		if cb.cfg.onStateChange != nil {
			cb.cfg.onStateChange("half_open", cb.lastLabel)
		}
	}
}

// before must be called right before an operation is attempted. label
// identifies the table/query the caller is about to run, surfaced to
// onStateChange so a trip can be attributed to the part of the schema that
// caused it.
func (cb *circuitBreaker) before(label string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastLabel = label
	switch cb.state {
	case stateClosed:
		return nil
	case stateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.openTimeout {
			cb.setState(stateHalfOpen)
		} else {
			return circuitOpenErr
		}
	}
	// half-open state: limit in-flight trial calls
	select {
	case cb.halfOpenSem <- struct{}{}:
		return nil
	default:
		return circuitOpenErr
	}
}

// after must be called exactly once after an operation completes, with the
// same label passed to before.
func (cb *circuitBreaker) after(label string, opErr error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastLabel = label

	// release half-open semaphore if needed
	if cb.state == stateHalfOpen {
		select {
		case <-cb.halfOpenSem:
		default:
		}
	}

	if opErr == nil {
		switch cb.state {
		case stateClosed:
			cb.failures = 0
		case stateHalfOpen:
			// successful trial -> close circuit
			cb.setState(stateClosed)
		case stateOpen:
			// ignore (should not happen)
		}
		return
	}
	// On error, count failures only in closed or half-open
	switch cb.state {
	case stateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.failureThreshold {
			cb.setState(stateOpen)
		}
	case stateHalfOpen:
		// failed trial -> open again
		cb.setState(stateOpen)
	}
}
