package health

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/fluency/internal/resilience"
)

// Pinger is implemented by dependencies that can report their reachability,
// such as the report store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store returns a checker named "store" that pings p.
func Store(p Pinger) Checker {
	return Checker{Name: "store", Check: p.Ping}
}

// Transcription returns a checker named "transcription" that fails when the
// circuit breaker of every transcription provider is open, since no
// assessment could then reach a backend.
func Transcription(states func() []resilience.EntryState) Checker {
	return Checker{
		Name: "transcription",
		Check: func(context.Context) error {
			entries := states()
			if len(entries) == 0 {
				return errors.New("no providers configured")
			}
			open := make([]string, 0, len(entries))
			for _, e := range entries {
				if e.State != resilience.StateOpen {
					return nil
				}
				open = append(open, e.Name)
			}
			return fmt.Errorf("all circuit breakers open: %s", strings.Join(open, ", "))
		},
	}
}
