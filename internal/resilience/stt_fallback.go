package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/fluency/internal/observe"
	"github.com/MrWong99/fluency/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with automatic failover across
// several speech backends, each behind its own circuit breaker.
//
// A rejected sample rate or an expired caller context ends the walk at once:
// another backend would see the same audio and the same deadline.
type STTFallback struct {
	chain   *Chain[namedTranscriber]
	metrics *observe.Metrics
}

var _ stt.Transcriber = (*STTFallback)(nil)

type namedTranscriber struct {
	name string
	stt.Transcriber
}

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend. cfg.Permanent and cfg.CircuitBreaker.IsFailure are filled with
// the transcription defaults when nil. m may be nil; otherwise breaker
// transitions are counted on it.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig, m *observe.Metrics) *STTFallback {
	if cfg.Permanent == nil {
		cfg.Permanent = permanentSTTError
	}
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = func(err error) bool { return !permanentSTTError(err) }
	}
	if m != nil && cfg.CircuitBreaker.OnStateChange == nil {
		cfg.CircuitBreaker.OnStateChange = func(name string, _, to State) {
			m.RecordBreakerTransition(context.Background(), name, to.String())
		}
	}
	return &STTFallback{
		chain:   NewChain(primaryName, namedTranscriber{primaryName, primary}, cfg),
		metrics: m,
	}
}

// AddFallback registers an additional backend.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.chain.Add(name, namedTranscriber{name, t})
}

// States reports the breaker state of every backend.
func (f *STTFallback) States() []EntryState {
	return f.chain.States()
}

// Transcribe runs req against the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (*stt.Recognition, error) {
	return Try(ctx, f.chain, func(ctx context.Context, t namedTranscriber) (*stt.Recognition, error) {
		start := time.Now()
		rec, err := t.Transcribe(ctx, req)
		f.record(ctx, t.name, time.Since(start), err)
		return rec, err
	})
}

func (f *STTFallback) record(ctx context.Context, name string, d time.Duration, err error) {
	if f.metrics != nil {
		f.metrics.RecordTranscription(ctx, name, d, err)
	}
}

func permanentSTTError(err error) bool {
	return errors.Is(err, stt.ErrSampleRate) ||
		stt.MentionsSampleRate(err.Error()) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
