// Package stt defines the contract between the fluency engine and a batch
// speech-to-text collaborator.
//
// A [Transcriber] takes a reference to a recorded audio file and returns a
// [Recognition]: an ordered list of segments, each carrying one or more
// alternative hypotheses with per-word timing. The engine only ever looks at
// the top alternative of each segment.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Encoding names the audio encoding declared to the recogniser.
type Encoding string

const (
	// EncodingLinear16 is uncompressed 16-bit signed little-endian PCM.
	EncodingLinear16 Encoding = "LINEAR16"
)

// DefaultSampleRateHertz is the only sample rate the assessment flow accepts.
const DefaultSampleRateHertz = 16000

// ErrSampleRate marks a failure that the collaborator attributed to a
// mismatch between the declared and the actual audio sample rate. Backends
// wrap it so callers can detect it with [errors.Is].
var ErrSampleRate = errors.New("stt: audio sample rate does not match the request")

// Request describes a single batch recognition call.
type Request struct {
	// AudioURI locates the recording (e.g., "gs://bucket/student.wav").
	AudioURI string

	// LanguageCode is a BCP-47 tag such as "en-IN" or "hi-IN".
	LanguageCode string

	// Encoding is the declared audio encoding.
	Encoding Encoding

	// SampleRateHertz is the declared sample rate.
	SampleRateHertz int

	// EnableWordTimeOffsets requests per-word start/end offsets.
	EnableWordTimeOffsets bool

	// EnableAutomaticPunctuation asks the recogniser to punctuate its output.
	EnableAutomaticPunctuation bool
}

// DefaultRequest returns the request used by reading assessments: LINEAR16 at
// 16 kHz with word offsets and automatic punctuation enabled.
func DefaultRequest(audioURI, languageCode string) Request {
	return Request{
		AudioURI:                   audioURI,
		LanguageCode:               languageCode,
		Encoding:                   EncodingLinear16,
		SampleRateHertz:            DefaultSampleRateHertz,
		EnableWordTimeOffsets:      true,
		EnableAutomaticPunctuation: true,
	}
}

// WordTiming is the timing of one recognised word, relative to the start of
// the recording.
type WordTiming struct {
	Word      string
	StartTime time.Duration
	EndTime   time.Duration
}

// Alternative is one recognition hypothesis for a segment.
type Alternative struct {
	// Transcript is the recognised text, possibly punctuated.
	Transcript string

	// Confidence is in [0, 1]. Zero when the backend does not report it.
	Confidence float64

	// Words holds per-word timing in recognition order. May be empty.
	Words []WordTiming
}

// Segment is one consecutive portion of the recording. Alternatives are
// ordered from most to least likely.
type Segment struct {
	Alternatives []Alternative
}

// Recognition is the full result of a [Transcriber.Transcribe] call.
// A Recognition with no segments means nothing was recognised at all.
type Recognition struct {
	Segments []Segment
}

// Transcript concatenates the top alternative of every segment, each followed
// by one space, and trims the ends of the result. Whitespace inside segment
// text is preserved, so a segment that starts with a space yields a double
// space at the join. Segments without alternatives are skipped.
func (r *Recognition) Transcript() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range r.Segments {
		if len(seg.Alternatives) == 0 {
			continue
		}
		b.WriteString(seg.Alternatives[0].Transcript)
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

// Words returns the per-word timings of every segment's top alternative,
// concatenated in recognition order.
func (r *Recognition) Words() []WordTiming {
	if r == nil {
		return nil
	}
	var words []WordTiming
	for _, seg := range r.Segments {
		if len(seg.Alternatives) == 0 {
			continue
		}
		words = append(words, seg.Alternatives[0].Words...)
	}
	return words
}

// Transcriber converts a recorded audio file into a [Recognition].
//
// Transcribe blocks until the recognition completes, ctx is cancelled, or the
// backend fails. An empty result (no speech) is not an error: it is reported
// as a Recognition without segments.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (*Recognition, error)
}

// MentionsSampleRate reports whether a collaborator error message blames the
// audio sample rate. Backends use it to decide when to wrap [ErrSampleRate].
func MentionsSampleRate(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "sample rate") ||
		strings.Contains(msg, "sample_rate") ||
		strings.Contains(msg, "samplerate")
}

// PrimaryLanguage returns the primary language subtag of a BCP-47 tag
// ("en-IN" → "en"). Backends that only accept ISO 639-1 codes use it.
func PrimaryLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
