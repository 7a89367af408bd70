// breaker.go - circuit breaker around object store calls.
//
// After a run of consecutive failures the breaker opens and calls fail
// fast until the cool-down elapses; one probe is then let through.
package storage

import (
	"errors"
	"sync"
	"time"

	"r2-share/internal/logging"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed lets calls through.
	StateClosed CircuitState = iota
	// StateOpen rejects calls without contacting the store.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker is open or its probe slot
// is taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker counts consecutive failures of the calls it executes.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures uint32
	timeout     time.Duration
	isFailure   func(error) bool
	now         func() time.Time

	state           CircuitState
	failures        uint32
	lastFailureTime time.Time
	probing         bool

	totalRequests    uint64
	failedRequests   uint64
	rejectedRequests uint64
}

// NewCircuitBreaker creates a breaker that opens after maxFailures
// consecutive failures and probes again after timeout. isFailure decides
// which errors count; nil counts every error.
func NewCircuitBreaker(maxFailures uint32, timeout time.Duration, isFailure func(error) bool) *CircuitBreaker {
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		isFailure:   isFailure,
		now:         time.Now,
		state:       StateClosed,
	}
}

// Execute runs fn unless the breaker is open. The lock is not held while
// fn runs.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	var berr *BodyError
	if errors.As(err, &berr) {
		// The store was never judged; free the probe slot and keep the count.
		cb.release()
		return err
	}
	cb.after(err != nil && cb.isFailure(err))
	return err
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.timeout {
			cb.rejectedRequests++
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		logging.Info("circuit_breaker_half_open", logging.Fields{"timeout": cb.timeout.String()})
	case StateHalfOpen:
		if cb.probing {
			cb.rejectedRequests++
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) after(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false

	if !failed {
		if cb.state != StateClosed {
			logging.Info("circuit_breaker_closed", logging.Fields{"reason": "probe_succeeded"})
		}
		cb.state = StateClosed
		cb.failures = 0
		return
	}

	cb.failedRequests++
	cb.failures++
	cb.lastFailureTime = cb.now()

	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		if cb.state != StateOpen {
			logging.Warn("circuit_breaker_opened", logging.Fields{
				"failures":     cb.failures,
				"max_failures": cb.maxFailures,
				"timeout":      cb.timeout.String(),
			})
		}
		cb.state = StateOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns breaker counters.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:            cb.state.String(),
		Failures:         cb.failures,
		TotalRequests:    cb.totalRequests,
		FailedRequests:   cb.failedRequests,
		RejectedRequests: cb.rejectedRequests,
		LastFailureTime:  cb.lastFailureTime,
	}
}

// CircuitBreakerStats holds circuit breaker statistics.
type CircuitBreakerStats struct {
	State            string    `json:"state"`
	Failures         uint32    `json:"failures"`
	TotalRequests    uint64    `json:"total_requests"`
	FailedRequests   uint64    `json:"failed_requests"`
	RejectedRequests uint64    `json:"rejected_requests"`
	LastFailureTime  time.Time `json:"last_failure_time"`
}
