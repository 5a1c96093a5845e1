package fluency

import "github.com/MrWong99/fluency/internal/fluency/phonetic"

// Diagnosis annotates one [Mispronunciation] with how close the heard words
// sound to the expected ones.
type Diagnosis struct {
	Mispronunciation
	Score    float64
	Phonetic bool
	NearMiss bool
}

var defaultGrader = phonetic.New()

// Diagnose grades every mispronunciation of r in order. It returns nil for a
// nil report. The result is for human-readable output only and is not part
// of the serialised report.
func Diagnose(r *Report) []Diagnosis {
	if r == nil {
		return nil
	}
	out := make([]Diagnosis, 0, len(r.ErrorAnalysis.Mispronounced))
	for _, m := range r.ErrorAnalysis.Mispronounced {
		g := defaultGrader.Grade(m.Expected, m.Heard)
		out = append(out, Diagnosis{
			Mispronunciation: m,
			Score:            g.Score,
			Phonetic:         g.Phonetic,
			NearMiss:         g.NearMiss,
		})
	}
	return out
}
