// Package resilience keeps transcription available when a speech backend
// misbehaves.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open).
// [Chain] puts one breaker in front of each backend and [Try] walks them in
// order. [STTFallback] applies that to [stt.Transcriber].
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] without running the
// call, while the breaker is open or its half-open probe budget is spent.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call until ResetTimeout has passed since the
	// last counted failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probes through. One failed probe
	// reopens the breaker; HalfOpenMax successful ones close it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker defaults for zero config fields.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and in OnStateChange.
	Name string

	// MaxFailures is the run of consecutive counted failures that opens a
	// closed breaker. Default: [DefaultMaxFailures].
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: [DefaultResetTimeout].
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probes a half-open breaker admits.
	// Default: [DefaultHalfOpenMax].
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. A
	// rejected sample rate, for instance, is the caller's fault and says
	// nothing about the backend. When nil, every error counts.
	IsFailure func(error) bool

	// OnStateChange, when set, is called after every transition, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// CircuitBreaker guards calls to one backend.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int // consecutive counted failures while closed
	openedAt  time.Time
	probes    int // probes admitted in the current half-open round
	successes int // successful probes in the current half-open round
}

// NewCircuitBreaker returns a closed breaker. Zero fields of cfg take their
// defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn when the breaker admits it and returns fn's error
// unchanged. Otherwise it returns [ErrCircuitOpen] and fn is not called.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, cb.counts(err))
	return err
}

// State reports the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooled() {
		return StateHalfOpen
	}
	return cb.state
}

// admit decides whether a call may run. probe is true for half-open probes.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen {
		if !cb.cooled() {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.probes++
		probe = true
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return probe, nil
}

// settle accounts for a finished call.
func (cb *CircuitBreaker) settle(probe, failed bool) {
	cb.mu.Lock()
	from := cb.state
	switch {
	case probe && cb.state != StateHalfOpen:
		// Another probe already decided this round.
	case probe && failed:
		cb.moveTo(StateOpen)
	case probe:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			cb.moveTo(StateClosed)
		}
	case failed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.moveTo(StateOpen)
		}
	default:
		cb.failures = 0
	}
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	if from != to {
		slog.Warn("circuit breaker state changed",
			"name", cb.cfg.Name, "from", from.String(), "to", to.String(),
			"consecutive_failures", failures)
	}
	cb.notify(from, to)
}

// moveTo switches state and resets the counters of the new state. cb.mu
// must be held.
func (cb *CircuitBreaker) moveTo(s State) {
	cb.state = s
	cb.probes = 0
	cb.successes = 0
	switch s {
	case StateClosed:
		cb.failures = 0
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
	}
}

// cooled reports whether an open breaker may start probing. cb.mu must be
// held.
func (cb *CircuitBreaker) cooled() bool {
	return cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

func (cb *CircuitBreaker) counts(err error) bool {
	if err == nil {
		return false
	}
	return cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
