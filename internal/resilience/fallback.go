package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/fluency/internal/observe"
)

// ErrAllFailed is returned by [Try] when no backend of a [Chain] produced a
// result. The per-backend errors are joined behind it.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [Chain].
type FallbackConfig struct {
	// CircuitBreaker is copied for every backend; Name is set per backend.
	CircuitBreaker CircuitBreakerConfig

	// Permanent reports errors that no other backend could fix. Such an
	// error ends the walk and is returned as is. When nil, every error moves
	// on to the next backend.
	Permanent func(error) bool
}

// EntryState is the breaker state of one backend of a [Chain].
type EntryState struct {
	Name  string
	State State
}

type link[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Chain is an ordered list of interchangeable backends, each guarded by its
// own [CircuitBreaker]. Backends must all be added before the first [Try].
type Chain[T any] struct {
	cfg   FallbackConfig
	links []link[T]
}

// NewChain returns a chain whose first backend is primary.
func NewChain[T any](primaryName string, primary T, cfg FallbackConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a backend tried after all earlier ones.
func (c *Chain[T]) Add(name string, v T) {
	bc := c.cfg.CircuitBreaker
	bc.Name = name
	c.links = append(c.links, link[T]{name: name, value: v, breaker: NewCircuitBreaker(bc)})
}

// States returns the breaker state of every backend in order.
func (c *Chain[T]) States() []EntryState {
	out := make([]EntryState, 0, len(c.links))
	for _, l := range c.links {
		out = append(out, EntryState{Name: l.name, State: l.breaker.State()})
	}
	return out
}

// Try calls fn on each backend of c in order and returns the first result
// without error. Backends whose breaker is open are skipped. A Permanent
// error, or a done ctx, stops the walk early and is returned unwrapped.
func Try[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	log := observe.Logger(ctx)
	for _, l := range c.links {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var out R
		err := l.breaker.Execute(func() error {
			var ferr error
			out, ferr = fn(ctx, l.value)
			return ferr
		})
		switch {
		case err == nil:
			return out, nil
		case c.cfg.Permanent != nil && c.cfg.Permanent(err):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			log.Debug("skipping provider with open circuit", "provider", l.name)
		default:
			log.Warn("provider failed, trying next", "provider", l.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
