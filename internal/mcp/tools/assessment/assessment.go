// Package assessment provides the MCP tools that expose reading fluency
// assessment to agents.
//
// Three tools are exported via [Tools]:
//   - "assess_reading_fluency": transcribes a recording and scores it against
//     the passage.
//   - "compare_transcript": scores an already known transcript, with no
//     transcription call.
//   - "get_assessment": returns a stored assessment by ID. Only offered when
//     a [Getter] is configured.
//
// The assessment tools always answer with a single JSON object, the report or
// {"error": ...}; they never fail at the protocol level.
package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/fluency/internal/fluency"
	"github.com/MrWong99/fluency/internal/mcp/tools"
	"github.com/MrWong99/fluency/internal/observe"
	"github.com/MrWong99/fluency/internal/reportstore"
)

// Tool names.
const (
	ToolAssess  = "assess_reading_fluency"
	ToolCompare = "compare_transcript"
	ToolGet     = "get_assessment"
)

// Assessor runs an assessment end to end. *fluency.Assessor satisfies it.
type Assessor interface {
	Assess(ctx context.Context, in fluency.Input) fluency.Outcome
}

// Getter looks up stored assessments. *reportstore.PostgresStore satisfies it.
type Getter interface {
	Get(ctx context.Context, id string) (*reportstore.Entry, error)
}

// Option configures [Tools].
type Option func(*options)

type options struct {
	getter  Getter
	timeout time.Duration
}

// WithGetter enables the get_assessment tool.
func WithGetter(g Getter) Option {
	return func(o *options) { o.getter = g }
}

// WithTimeout sets the DeclaredMax of assess_reading_fluency. It should
// exceed the assessor's own transcription timeout so the assessor, not the
// tool bound, classifies a slow backend.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

type assessArgs struct {
	OriginalText       string `json:"original_text"`
	StudentAudioGCSURI string `json:"student_audio_gcs_uri"`
	LanguageCode       string `json:"language_code"`
}

type compareArgs struct {
	OriginalText string `json:"original_text"`
	Transcript   string `json:"transcript"`
}

type getArgs struct {
	ID string `json:"id"`
}

// Tools returns the assessment tools backed by a.
func Tools(a Assessor, opts ...Option) []tools.Tool {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	ts := []tools.Tool{
		{
			Definition: tools.Definition{
				Name: ToolAssess,
				Description: "Assess a student's reading fluency. Transcribes the recording and compares it " +
					"word by word with the passage. Returns JSON with accuracy, words per minute and the " +
					"mispronounced, skipped and added words, or {\"error\": message}.",
				Parameters: objectSchema(map[string]any{
					"original_text":         stringProp("The passage the student was asked to read."),
					"student_audio_gcs_uri": stringProp("URI of the 16 kHz LINEAR16 WAV recording, e.g. gs://bucket/student.wav."),
					"language_code":         stringProp("BCP-47 language code of the passage, e.g. en-IN or hi-IN."),
				}, "original_text", "student_audio_gcs_uri", "language_code"),
			},
			Handler:     assessHandler(a),
			DeclaredMax: o.timeout,
		},
		{
			Definition: tools.Definition{
				Name:        ToolCompare,
				Description: "Score a known transcript against the passage without transcribing audio. Reading speed is 0 since no timing is available.",
				Parameters: objectSchema(map[string]any{
					"original_text": stringProp("The passage the student was asked to read."),
					"transcript":    stringProp("What the student read."),
				}, "original_text", "transcript"),
			},
			Handler:     compareHandler,
			DeclaredMax: time.Second,
		},
	}
	if o.getter != nil {
		ts = append(ts, tools.Tool{
			Definition: tools.Definition{
				Name:        ToolGet,
				Description: "Fetch a previously stored assessment by its ID.",
				Parameters: objectSchema(map[string]any{
					"id": stringProp("Assessment ID as returned when the assessment ran."),
				}, "id"),
			},
			Handler:     getHandler(o.getter),
			DeclaredMax: 10 * time.Second,
		})
	}
	return ts
}

func assessHandler(a Assessor) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var in assessArgs
		if err := decode(args, &in); err != nil {
			observe.Logger(ctx).Error("assessment: invalid tool arguments", "err", err)
			return fluency.Failure(fluency.NewError(fluency.KindUnexpected, err)).JSON(), nil
		}
		out := a.Assess(ctx, fluency.Input{
			OriginalText: in.OriginalText,
			AudioURI:     in.StudentAudioGCSURI,
			LanguageCode: in.LanguageCode,
		})
		return out.JSON(), nil
	}
}

func compareHandler(ctx context.Context, args string) (string, error) {
	var in compareArgs
	if err := decode(args, &in); err != nil {
		observe.Logger(ctx).Error("assessment: invalid tool arguments", "err", err)
		return fluency.Failure(fluency.NewError(fluency.KindUnexpected, err)).JSON(), nil
	}
	return fluency.Evaluate(in.OriginalText, in.Transcript, nil).JSON(), nil
}

func getHandler(g Getter) func(context.Context, string) (string, error) {
	return func(ctx context.Context, args string) (string, error) {
		var in getArgs
		if err := decode(args, &in); err != nil {
			return "", fmt.Errorf("assessment: %w", err)
		}
		if in.ID == "" {
			return "", errors.New("assessment: id is required")
		}
		e, err := g.Get(ctx, in.ID)
		if err != nil {
			return "", fmt.Errorf("assessment: lookup failed: %w", err)
		}
		if e == nil {
			return "", fmt.Errorf("assessment: %q not found", in.ID)
		}
		return string(e.Outcome), nil
	}
}

// decode unmarshals args into v. Empty args decode as an empty object.
func decode(args string, v any) error {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}
