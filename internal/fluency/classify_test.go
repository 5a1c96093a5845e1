package fluency

import (
	"reflect"
	"testing"

	"github.com/MrWong99/fluency/internal/fluency/align"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		original    []string
		transcript  []string
		wantCorrect int
		want        ErrorAnalysis
	}{
		{
			name:        "perfect reading",
			original:    []string{"a", "b", "c"},
			transcript:  []string{"a", "b", "c"},
			wantCorrect: 3,
			want:        ErrorAnalysis{Mispronounced: []Mispronunciation{}, Skipped: []string{}, Added: []string{}},
		},
		{
			name:        "substitution",
			original:    []string{"a", "b", "c"},
			transcript:  []string{"a", "x", "c"},
			wantCorrect: 2,
			want: ErrorAnalysis{
				Mispronounced: []Mispronunciation{{Expected: "b", Heard: "x"}},
				Skipped:       []string{},
				Added:         []string{},
			},
		},
		{
			name:        "omission",
			original:    []string{"the", "cat", "sat", "on", "the", "mat"},
			transcript:  []string{"the", "cat", "on", "the", "mat"},
			wantCorrect: 5,
			want: ErrorAnalysis{
				Mispronounced: []Mispronunciation{},
				Skipped:       []string{"sat"},
				Added:         []string{},
			},
		},
		{
			name:        "insertion",
			original:    []string{"the", "cat"},
			transcript:  []string{"the", "big", "fat", "cat"},
			wantCorrect: 2,
			want: ErrorAnalysis{
				Mispronounced: []Mispronunciation{},
				Skipped:       []string{},
				Added:         []string{"big", "fat"},
			},
		},
		{
			name:        "multi-word replace joins with spaces",
			original:    []string{"a", "b", "c", "d"},
			transcript:  []string{"a", "x", "y", "z", "d"},
			wantCorrect: 2,
			want: ErrorAnalysis{
				Mispronounced: []Mispronunciation{{Expected: "b c", Heard: "x y z"}},
				Skipped:       []string{},
				Added:         []string{},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := align.Align(tt.original, tt.transcript)
			correct, got := Classify(tt.original, tt.transcript, ops)
			if correct != tt.wantCorrect {
				t.Errorf("correct = %d, want %d", correct, tt.wantCorrect)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("analysis = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassify_CountsCoverBothSequences(t *testing.T) {
	original := []string{"one", "two", "three", "four", "five"}
	transcript := []string{"zero", "one", "too", "three", "five", "six"}

	ops := align.Align(original, transcript)
	correct, a := Classify(original, transcript, ops)

	var replacedOrig, replacedHeard int
	for _, op := range ops {
		if op.Tag == align.Replace {
			replacedOrig += op.I2 - op.I1
			replacedHeard += op.J2 - op.J1
		}
	}
	if got := correct + len(a.Skipped) + replacedOrig; got != len(original) {
		t.Errorf("original accounted = %d, want %d", got, len(original))
	}
	if got := correct + len(a.Added) + replacedHeard; got != len(transcript) {
		t.Errorf("transcript accounted = %d, want %d", got, len(transcript))
	}
}
