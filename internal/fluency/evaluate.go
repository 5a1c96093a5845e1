package fluency

import (
	"github.com/MrWong99/fluency/internal/fluency/align"
	"github.com/MrWong99/fluency/pkg/provider/stt"
)

// Evaluate compares the passage with a recognised transcript and assembles
// the outcome. words supplies the per-word timing used for the duration.
//
// A transcript that normalizes to no tokens fails with
// [KindEmptyTranscript] before any alignment runs. Evaluate is pure and safe
// to call concurrently.
func Evaluate(originalText, transcript string, words []stt.WordTiming) Outcome {
	heard := Normalize(transcript)
	if len(heard) == 0 {
		return Failure(NewError(KindEmptyTranscript, nil))
	}
	expected := Normalize(originalText)

	ops := align.Align(expected, heard)
	correct, analysis := Classify(expected, heard, ops)

	return Success(&Report{
		ObjectiveMetrics: ComputeMetrics(correct, len(expected), len(heard), words),
		ErrorAnalysis:    analysis,
		FullTranscript:   transcript,
	})
}
