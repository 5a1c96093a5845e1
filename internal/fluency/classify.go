package fluency

import (
	"strings"

	"github.com/MrWong99/fluency/internal/fluency/align"
)

// Classify walks ops in order and sorts every span into the error taxonomy.
// It returns the number of correctly read words and the error analysis.
//
//   - Equal spans add their length to the correct count.
//   - Replace spans become one [Mispronunciation] each.
//   - Delete spans add each original token to Skipped.
//   - Insert spans add each transcript token to Added.
func Classify(original, transcript []string, ops []align.Op) (correct int, analysis ErrorAnalysis) {
	analysis = ErrorAnalysis{
		Mispronounced: []Mispronunciation{},
		Skipped:       []string{},
		Added:         []string{},
	}
	for _, op := range ops {
		switch op.Tag {
		case align.Equal:
			correct += op.I2 - op.I1
		case align.Replace:
			analysis.Mispronounced = append(analysis.Mispronounced, Mispronunciation{
				Expected: strings.Join(original[op.I1:op.I2], " "),
				Heard:    strings.Join(transcript[op.J1:op.J2], " "),
			})
		case align.Delete:
			analysis.Skipped = append(analysis.Skipped, original[op.I1:op.I2]...)
		case align.Insert:
			analysis.Added = append(analysis.Added, transcript[op.J1:op.J2]...)
		}
	}
	return correct, analysis
}
