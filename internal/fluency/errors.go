package fluency

import (
	"context"
	"errors"

	"github.com/MrWong99/fluency/pkg/provider/stt"
)

// Kind classifies why an assessment could not produce a report.
type Kind int

const (
	// KindUnexpected covers every failure not listed below.
	KindUnexpected Kind = iota

	// KindEmptyRecognition means the recogniser returned no results at all,
	// typically silence or a wrong sample rate.
	KindEmptyRecognition

	// KindEmptyTranscript means results existed but held no usable words.
	KindEmptyTranscript

	// KindSampleRateMismatch means the recogniser rejected the sample rate.
	KindSampleRateMismatch

	// KindTimeout means the transcription call exceeded its deadline.
	KindTimeout
)

// String returns a stable snake_case label, used as a metric attribute.
func (k Kind) String() string {
	switch k {
	case KindEmptyRecognition:
		return "empty_recognition"
	case KindEmptyTranscript:
		return "empty_transcript"
	case KindSampleRateMismatch:
		return "sample_rate_mismatch"
	case KindTimeout:
		return "timeout"
	default:
		return "unexpected"
	}
}

// Message returns the user-facing text for the kind. It never contains
// diagnostic detail from the underlying failure.
func (k Kind) Message() string {
	switch k {
	case KindEmptyRecognition:
		return "Could not understand any speech. The audio file might be silent or have an incorrect sample rate (must be 16000 Hz)."
	case KindEmptyTranscript:
		return "Transcription was empty. The audio might be silent."
	case KindSampleRateMismatch:
		return "The audio assessment failed. Please ensure the audio is a WAV file with a 16000 Hz sample rate."
	case KindTimeout:
		return "The audio assessment timed out waiting for the transcription service. Please try again with a shorter recording."
	default:
		return "An unexpected error occurred during the assessment."
	}
}

// Error is the typed failure carried by a failed [Outcome].
// Error() is the user-facing message; the wrapped cause is for logs only.
type Error struct {
	Kind  Kind
	cause error
}

// NewError returns an *Error of kind k wrapping cause (which may be nil).
func NewError(k Kind, cause error) *Error {
	return &Error{Kind: k, cause: cause}
}

// Error implements error.
func (e *Error) Error() string { return e.Kind.Message() }

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// classify maps a transcription failure to a [Kind]. timedOut reports whether
// the bounded transcription context hit its deadline.
func classify(err error, timedOut bool) Kind {
	var fe *Error
	switch {
	case errors.As(err, &fe):
		return fe.Kind
	case timedOut, errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, stt.ErrSampleRate), stt.MentionsSampleRate(err.Error()):
		return KindSampleRateMismatch
	default:
		return KindUnexpected
	}
}
