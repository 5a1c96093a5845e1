// Package fluency implements the reading fluency assessment engine.
//
// Given the passage a student was asked to read and the transcript of their
// recording, the engine aligns the two word sequences and produces a
// [Report]: accuracy, reading speed, and the mispronounced, skipped and added
// words. When the recording cannot be used, it produces a typed [Error]
// instead. The two are carried together in an [Outcome], of which exactly one
// half is ever set.
//
// [Evaluate] is the pure engine. [Assessor] wraps it with the bounded call to
// the transcription collaborator, metrics, and optional persistence.
package fluency

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Fixed1 is a float serialised with exactly one decimal place.
type Fixed1 float64

// MarshalJSON implements json.Marshaler.
func (f Fixed1) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(f), 'f', 1, 64), nil
}

// Fixed2 is a float serialised with exactly two decimal places.
type Fixed2 float64

// MarshalJSON implements json.Marshaler.
func (f Fixed2) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(f), 'f', 2, 64), nil
}

// ObjectiveMetrics holds the numeric part of a [Report].
type ObjectiveMetrics struct {
	AccuracyPercent      Fixed1 `json:"accuracy_percent"`
	WordsPerMinute       int    `json:"words_per_minute"`
	CorrectWords         int    `json:"correct_words"`
	TotalWords           int    `json:"total_words"`
	AudioDurationSeconds Fixed2 `json:"audio_duration_seconds"`
}

// Mispronunciation pairs the expected words of a replaced span with what was
// heard instead. Both sides are space-joined normalized tokens.
type Mispronunciation struct {
	Expected string `json:"expected"`
	Heard    string `json:"heard"`
}

// ErrorAnalysis lists the reading errors in passage order. The slices are
// never nil, so they always serialise as JSON arrays.
type ErrorAnalysis struct {
	Mispronounced []Mispronunciation `json:"mispronounced"`
	Skipped       []string           `json:"skipped"`
	Added         []string           `json:"added"`
}

// Report is the successful result of an assessment. Field names and order
// are part of the public contract.
type Report struct {
	ObjectiveMetrics ObjectiveMetrics `json:"objective_metrics"`
	ErrorAnalysis    ErrorAnalysis    `json:"error_analysis"`
	FullTranscript   string           `json:"full_transcript"`
}

// Outcome is the tagged result of one assessment: either Report or Err is
// set, never both.
type Outcome struct {
	// ID identifies the assessment when it was run by an [Assessor].
	// It is not part of the serialised form.
	ID string

	Report *Report
	Err    *Error
}

// Success returns an Outcome carrying r.
func Success(r *Report) Outcome { return Outcome{Report: r} }

// Failure returns an Outcome carrying e.
func Failure(e *Error) Outcome { return Outcome{Err: e} }

// Failed reports whether the outcome carries an error.
func (o Outcome) Failed() bool { return o.Err != nil }

// errorBody is the serialised form of a failed Outcome.
type errorBody struct {
	Error string `json:"error"`
}

// MarshalJSON renders either the report or {"error": message}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Err != nil || o.Report == nil {
		msg := KindUnexpected.Message()
		if o.Err != nil {
			msg = o.Err.Error()
		}
		return encode(errorBody{Error: msg})
	}
	return encode(o.Report)
}

// JSON returns the serialised outcome. It never fails: should encoding the
// report ever error, the generic error object is returned instead.
func (o Outcome) JSON() string {
	data, err := encode(o)
	if err != nil {
		data, _ = encode(errorBody{Error: KindUnexpected.Message()})
	}
	return string(data)
}

// encode marshals v without HTML escaping, so transcripts keep characters
// such as '&' verbatim.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
