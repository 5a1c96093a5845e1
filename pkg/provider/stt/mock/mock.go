// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to feed a canned [stt.Recognition] or error to the code
// under test and to inspect the requests it sent.
//
// Example:
//
//	tr := &mock.Transcriber{Result: mock.Recognition("the cat sat", time.Second)}
//	rec, err := tr.Transcribe(ctx, stt.DefaultRequest(uri, "en-US"))
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/fluency/pkg/provider/stt"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe.
	Req stt.Request
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil.
	Result *stt.Recognition

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Delay makes Transcribe wait before answering. The wait ends early, with
	// the context error, when ctx is done.
	Delay time.Duration

	// Calls records every call to Transcribe.
	Calls []Call
}

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records the call and returns Result, Err.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Recognition, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, Call{Ctx: ctx, Req: req})
	delay, result, err := t.Delay, t.Result, t.Err
	t.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CallCount returns the number of Transcribe calls so far.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// Reset clears the recorded calls.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
}

// Recognition builds a single-segment result for transcript whose words are
// spaced step apart, so the last word ends at len(words)*step.
func Recognition(transcript string, step time.Duration) *stt.Recognition {
	fields := strings.Fields(transcript)
	words := make([]stt.WordTiming, len(fields))
	for i, w := range fields {
		words[i] = stt.WordTiming{
			Word:      w,
			StartTime: time.Duration(i) * step,
			EndTime:   time.Duration(i+1) * step,
		}
	}
	return &stt.Recognition{Segments: []stt.Segment{{
		Alternatives: []stt.Alternative{{Transcript: transcript, Confidence: 0.9, Words: words}},
	}}}
}
