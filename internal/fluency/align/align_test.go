package align

import (
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
)

func words(s string) []string { return strings.Fields(s) }

func TestAlign_Cases(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		original   string
		transcript string
		want       []Op
	}{
		{
			name:       "identity",
			original:   "the sun is hot",
			transcript: "the sun is hot",
			want:       []Op{{Equal, 0, 4, 0, 4}},
		},
		{
			name:       "substitution",
			original:   "a b c",
			transcript: "a x c",
			want: []Op{
				{Equal, 0, 1, 0, 1},
				{Replace, 1, 2, 1, 2},
				{Equal, 2, 3, 2, 3},
			},
		},
		{
			name:       "omission",
			original:   "the cat sat on the mat",
			transcript: "the cat on the mat",
			want: []Op{
				{Equal, 0, 2, 0, 2},
				{Delete, 2, 3, 2, 2},
				{Equal, 3, 6, 2, 5},
			},
		},
		{
			name:       "insertion",
			original:   "the dog ran",
			transcript: "the big dog ran",
			want: []Op{
				{Equal, 0, 1, 0, 1},
				{Insert, 1, 1, 1, 2},
				{Equal, 1, 3, 2, 4},
			},
		},
		{
			name:       "multi-word replace",
			original:   "she sells sea shells",
			transcript: "she cells see shells",
			want: []Op{
				{Equal, 0, 1, 0, 1},
				{Replace, 1, 3, 1, 3},
				{Equal, 3, 4, 3, 4},
			},
		},
		{
			name:       "swap prefers earliest original match",
			original:   "a b",
			transcript: "b a",
			want: []Op{
				{Insert, 0, 0, 0, 1},
				{Equal, 0, 1, 1, 2},
				{Delete, 1, 2, 2, 2},
			},
		},
		{
			name:       "longer block wins over earlier block",
			original:   "x a b c y a",
			transcript: "a y a b c",
			want: []Op{
				{Replace, 0, 1, 0, 2},
				{Equal, 1, 4, 2, 5},
				{Delete, 4, 6, 5, 5},
			},
		},
		{
			name:       "nothing in common",
			original:   "one two",
			transcript: "three",
			want:       []Op{{Replace, 0, 2, 0, 1}},
		},
		{
			name:       "empty transcript",
			original:   "one two",
			transcript: "",
			want:       []Op{{Delete, 0, 2, 0, 0}},
		},
		{
			name:       "empty original",
			original:   "",
			transcript: "one",
			want:       []Op{{Insert, 0, 0, 0, 1}},
		},
		{
			name:       "both empty",
			original:   "",
			transcript: "",
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Align(words(tt.original), words(tt.transcript))
			if !slices.Equal(got, tt.want) {
				t.Errorf("Align(%q, %q)\n got  %v\n want %v", tt.original, tt.transcript, got, tt.want)
			}
		})
	}
}

func TestAlign_RepeatedTokensAreNotJunk(t *testing.T) {
	t.Parallel()
	// Enough repetitions that a popularity heuristic would discard "the".
	var orig, heard []string
	for range 300 {
		orig = append(orig, "the")
		heard = append(heard, "the")
	}
	heard[150] = "a"

	// The second block is matched as early as possible in the original, so
	// the odd word surfaces as an insertion plus a trailing omission rather
	// than a substitution.
	ops := Align(orig, heard)
	want := []Op{
		{Equal, 0, 150, 0, 150},
		{Insert, 150, 150, 150, 151},
		{Equal, 150, 299, 151, 300},
		{Delete, 299, 300, 300, 300},
	}
	if !slices.Equal(ops, want) {
		t.Errorf("Align() = %v, want %v", ops, want)
	}
}

func TestAlign_PartitionInvariant(t *testing.T) {
	t.Parallel()
	vocab := []string{"a", "b", "c", "d", "the", "cat"}
	rng := rand.New(rand.NewPCG(7, 11))

	for iter := range 500 {
		orig := randomTokens(rng, vocab, rng.IntN(12))
		heard := randomTokens(rng, vocab, rng.IntN(12))
		ops := Align(orig, heard)

		i, j := 0, 0
		for _, op := range ops {
			if op.I1 != i || op.J1 != j {
				t.Fatalf("iter %d: gap or overlap at %v (expected start %d,%d); ops=%v", iter, op, i, j, ops)
			}
			if op.I2 < op.I1 || op.J2 < op.J1 {
				t.Fatalf("iter %d: inverted range %v", iter, op)
			}
			switch op.Tag {
			case Equal:
				if !slices.Equal(orig[op.I1:op.I2], heard[op.J1:op.J2]) {
					t.Fatalf("iter %d: equal op %v spans differ", iter, op)
				}
			case Delete:
				if op.J1 != op.J2 || op.I1 == op.I2 {
					t.Fatalf("iter %d: malformed delete %v", iter, op)
				}
			case Insert:
				if op.I1 != op.I2 || op.J1 == op.J2 {
					t.Fatalf("iter %d: malformed insert %v", iter, op)
				}
			case Replace:
				if op.I1 == op.I2 || op.J1 == op.J2 {
					t.Fatalf("iter %d: malformed replace %v", iter, op)
				}
			}
			i, j = op.I2, op.J2
		}
		if i != len(orig) || j != len(heard) {
			t.Fatalf("iter %d: ops cover [0,%d)x[0,%d), want [0,%d)x[0,%d)", iter, i, j, len(orig), len(heard))
		}
	}
}

func TestTag_String(t *testing.T) {
	t.Parallel()
	for tag, want := range map[Tag]string{Equal: "equal", Replace: "replace", Delete: "delete", Insert: "insert", Tag(42): "unknown"} {
		if got := tag.String(); got != want {
			t.Errorf("Tag(%d).String() = %q, want %q", int(tag), got, want)
		}
	}
}

func randomTokens(rng *rand.Rand, vocab []string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = vocab[rng.IntN(len(vocab))]
	}
	return out
}
