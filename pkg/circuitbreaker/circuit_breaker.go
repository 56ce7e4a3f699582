package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker stops calling a failing upstream until a cool-down has passed.
type CircuitBreaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	probes      int
	countable   func(error) bool
	onChange    func(name string, from, to State)
	now         func() time.Time
	logger      *logrus.Logger

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	inFlight    int
	probeOK     int
	requests    uint64
	rejected    uint64
	lastFailure time.Time
}

type Option func(*CircuitBreaker)

// WithCountable limits which errors count as failures. By default every error does.
func WithCountable(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.countable = fn }
}

// WithStateChange registers a hook called on every transition.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// WithHalfOpenProbes sets how many successful probes close the circuit again.
func WithHalfOpenProbes(n int) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.probes = n
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

func New(name string, maxFailures int, timeout time.Duration, logger *logrus.Logger, opts ...Option) *CircuitBreaker {
	if logger == nil {
		logger = logrus.New()
	}
	if maxFailures < 1 {
		maxFailures = 1
	}
	cb := &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		probes:      1,
		countable:   func(error) bool { return true },
		now:         time.Now,
		logger:      logger,
		state:       StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn if the circuit allows it.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.timeout {
		cb.transition(StateHalfOpen)
	}

	switch cb.state {
	case StateOpen:
		cb.rejected++
		return &CircuitBreakerError{Name: cb.name, State: cb.state}
	case StateHalfOpen:
		if cb.inFlight >= cb.probes {
			cb.rejected++
			return &CircuitBreakerError{Name: cb.name, State: cb.state}
		}
	}
	cb.inFlight++
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.inFlight--
	failed := err != nil && cb.countable(err)

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			return
		}
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.failures >= cb.maxFailures {
			cb.trip()
		}
	case StateHalfOpen:
		if failed {
			cb.lastFailure = cb.now()
			cb.trip()
			return
		}
		cb.probeOK++
		if cb.probeOK >= cb.probes {
			cb.failures = 0
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.transition(StateOpen)
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"failures":        cb.failures,
	}).Warn("Circuit breaker opened due to failures")
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.probeOK = 0
	if to == StateClosed {
		cb.logger.WithField("circuit_breaker", cb.name).Info("Circuit breaker closed")
	}
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// GetState returns the current state, moving OPEN to HALF_OPEN once the timeout passed.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.timeout {
		cb.transition(StateHalfOpen)
	}
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name            string
	State           State
	Failures        int
	Requests        uint64
	Rejected        uint64
	LastFailureTime time.Time
}

func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failures,
		Requests:        cb.requests,
		Rejected:        cb.rejected,
		LastFailureTime: cb.lastFailure,
	}
}

// CircuitBreakerError is returned when a call is rejected.
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker %s is %s", e.Name, e.State)
}
