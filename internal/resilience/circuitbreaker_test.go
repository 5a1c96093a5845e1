package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// transition records one OnStateChange call.
type transition struct{ from, to State }

// newTestBreaker returns a breaker on a fake clock that records transitions.
func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock, *[]transition) {
	clock := newFakeClock()
	var seen []transition
	cfg.Now = clock.Now
	cfg.OnStateChange = func(_ string, from, to State) { seen = append(seen, transition{from, to}) }
	return NewCircuitBreaker(cfg), clock, &seen
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "google"})
	if cb.cfg.MaxFailures != DefaultMaxFailures ||
		cb.cfg.ResetTimeout != DefaultResetTimeout ||
		cb.cfg.HalfOpenMax != DefaultHalfOpenMax {
		t.Errorf("defaults = %d/%s/%d", cb.cfg.MaxFailures, cb.cfg.ResetTimeout, cb.cfg.HalfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.cfg.Name != "google" {
		t.Errorf("name = %q, want google", cb.cfg.Name)
	}
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	cb, clock, seen := newTestBreaker(CircuitBreakerConfig{
		MaxFailures:  3,
		ResetTimeout: time.Minute,
		HalfOpenMax:  2,
	})

	// A success in between resets the failure run.
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after interrupted failure run", cb.State())
	}

	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 consecutive failures", cb.State())
	}

	called := false
	if err := cb.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker: err = %v, called = %v", err, called)
	}

	clock.Advance(time.Minute)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after reset timeout", cb.State())
	}

	// A failed probe reopens and restarts the timeout.
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", cb.State())
	}
	clock.Advance(30 * time.Second)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open before the new timeout", cb.State())
	}
	clock.Advance(30 * time.Second)

	// HalfOpenMax successful probes close it.
	_ = cb.Execute(succeed)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after one of two probes", cb.State())
	}
	_ = cb.Execute(succeed)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after two good probes", cb.State())
	}

	want := []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(*seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", *seen, want)
	}
	for i := range want {
		if (*seen)[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, (*seen)[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	cb, clock, _ := newTestBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
	})
	_ = cb.Execute(fail)
	clock.Advance(time.Second)

	// While the only probe is in flight, further calls are rejected.
	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	errInput := errors.New("bad input")
	cb, _, seen := newTestBreaker(CircuitBreakerConfig{
		MaxFailures: 2,
		IsFailure:   func(err error) bool { return !errors.Is(err, errInput) },
	})

	for range 5 {
		if err := cb.Execute(func() error { return errInput }); !errors.Is(err, errInput) {
			t.Fatalf("err = %v, want errInput", err)
		}
	}
	if cb.State() != StateClosed || len(*seen) != 0 {
		t.Fatalf("state = %v after ignored errors, transitions %v", cb.State(), *seen)
	}

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after counted failures", cb.State())
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
