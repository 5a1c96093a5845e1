package fluency

import "testing"

func TestDiagnose(t *testing.T) {
	out := Evaluate("The whispers echo through the mountain", "the wispers echo threw the up", nil)
	if out.Failed() {
		t.Fatalf("unexpected failure: %v", out.Err)
	}

	got := Diagnose(out.Report)
	if len(got) != len(out.Report.ErrorAnalysis.Mispronounced) {
		t.Fatalf("len(Diagnose) = %d, want %d", len(got), len(out.Report.ErrorAnalysis.Mispronounced))
	}
	want := map[string]bool{"whispers": true, "through": true, "mountain": false}
	for _, d := range got {
		nearMiss, ok := want[d.Expected]
		if !ok {
			t.Errorf("unexpected mispronunciation %+v", d.Mispronunciation)
			continue
		}
		if d.NearMiss != nearMiss {
			t.Errorf("%q -> %q: NearMiss = %v, want %v (score %.2f)", d.Expected, d.Heard, d.NearMiss, nearMiss, d.Score)
		}
	}
}

func TestDiagnose_NilReport(t *testing.T) {
	if got := Diagnose(nil); got != nil {
		t.Errorf("Diagnose(nil) = %v, want nil", got)
	}
}
