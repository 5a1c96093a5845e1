package fluency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/fluency/internal/observe"
	"github.com/MrWong99/fluency/pkg/provider/stt"
)

// DefaultTimeout bounds the transcription call of one assessment.
const DefaultTimeout = 5 * time.Minute

// Input is one assessment request.
type Input struct {
	// OriginalText is the passage the student was asked to read.
	OriginalText string `json:"original_text"`

	// AudioURI locates the recording, e.g. "gs://bucket/student.wav".
	AudioURI string `json:"student_audio_gcs_uri"`

	// LanguageCode is a BCP-47 tag such as "en-IN" or "hi-IN".
	LanguageCode string `json:"language_code"`
}

// Record is a finished assessment as handed to a [Store].
type Record struct {
	ID        string
	Input     Input
	Outcome   Outcome
	CreatedAt time.Time
}

// Store persists finished assessments.
type Store interface {
	Save(ctx context.Context, rec Record) error
}

// Assessor runs assessments end to end: bounded transcription, evaluation,
// metrics and optional persistence. It is safe for concurrent use.
type Assessor struct {
	transcriber stt.Transcriber
	timeout     time.Duration
	metrics     *observe.Metrics
	store       Store
	now         func() time.Time
}

// Option is a functional option for [Assessor].
type Option func(*Assessor)

// WithTimeout bounds each transcription call. Values <= 0 are ignored.
// Default: [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(a *Assessor) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMetrics records assessment metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assessor) { a.metrics = m }
}

// WithStore persists every outcome to s.
func WithStore(s Store) Option {
	return func(a *Assessor) { a.store = s }
}

// NewAssessor returns an [Assessor] that transcribes with t.
func NewAssessor(t stt.Transcriber, opts ...Option) *Assessor {
	a := &Assessor{
		transcriber: t,
		timeout:     DefaultTimeout,
		now:         time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assess transcribes the recording named by in and evaluates it against the
// passage. Every failure is folded into the returned [Outcome]; the detail
// of collaborator errors is logged, never returned to the caller.
func (a *Assessor) Assess(ctx context.Context, in Input) Outcome {
	id := xid.New().String()
	start := a.now()

	ctx, span := observe.StartSpan(observe.WithAssessmentID(ctx, id), "fluency.assess")
	defer span.End()
	span.SetAttributes(
		attribute.String("assessment.id", id),
		attribute.String("assessment.language", in.LanguageCode),
	)
	log := observe.Logger(ctx)

	if a.metrics != nil {
		a.metrics.ActiveAssessments.Add(ctx, 1)
		defer a.metrics.ActiveAssessments.Add(ctx, -1)
	}

	out := a.run(ctx, log, in)
	out.ID = id

	outcome := "ok"
	accuracy := -1.0
	if out.Failed() {
		outcome = out.Err.Kind.String()
		span.SetStatus(codes.Error, outcome)
	} else {
		accuracy = float64(out.Report.ObjectiveMetrics.AccuracyPercent)
		span.SetAttributes(attribute.Float64("assessment.accuracy", accuracy))
	}
	elapsed := a.now().Sub(start)
	if a.metrics != nil {
		a.metrics.RecordAssessment(ctx, outcome, elapsed.Seconds(), accuracy)
	}
	log.Info("assessment finished", "outcome", outcome, "duration", elapsed)

	if a.store != nil {
		rec := Record{ID: id, Input: in, Outcome: out, CreatedAt: start.UTC()}
		if err := a.store.Save(ctx, rec); err != nil {
			log.Error("failed to store assessment", "err", err)
		}
	}
	return out
}

func (a *Assessor) run(ctx context.Context, log *slog.Logger, in Input) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("assessment panicked", "panic", r)
			out = Failure(NewError(KindUnexpected, fmt.Errorf("panic: %v", r)))
		}
	}()

	rec, fe := a.transcribe(ctx, in)
	if fe != nil {
		log.Error("transcription failed", "kind", fe.Kind.String(), "err", fe.Unwrap())
		return Failure(fe)
	}
	if rec == nil || len(rec.Segments) == 0 {
		log.Warn("transcription returned no results", "audio_uri", in.AudioURI)
		return Failure(NewError(KindEmptyRecognition, nil))
	}
	return Evaluate(in.OriginalText, rec.Transcript(), rec.Words())
}

// transcribe runs the bounded transcription call.
func (a *Assessor) transcribe(ctx context.Context, in Input) (*stt.Recognition, *Error) {
	ctx, span := observe.StartSpan(ctx, "fluency.transcribe")
	defer span.End()

	tctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rec, err := a.transcriber.Transcribe(tctx, stt.DefaultRequest(in.AudioURI, in.LanguageCode))
	if err != nil {
		timedOut := errors.Is(tctx.Err(), context.DeadlineExceeded)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		return nil, NewError(classify(err, timedOut), err)
	}
	return rec, nil
}
