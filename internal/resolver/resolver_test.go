package resolver

import (
	"math"
	"testing"

	"github.com/versohq/verso-agent/internal/lyrics"
)

var twoLines = []lyrics.Line{
	{Text: "Hello", Start: 0, End: 2},
	{Text: "World", Start: 2, End: 5},
}

func TestResolve_NeverStarted(t *testing.T) {
	res := Resolve(0, twoLines, false, false)
	if res.ActiveIndex != PreRollSlot || res.ContinuousIndex != float64(PreRollSlot) {
		t.Fatalf("never-started resolution = %+v, want locked pre-roll slot %d", res, PreRollSlot)
	}
	if res.InGap {
		t.Fatal("never-started state should not report a gap")
	}
}

func TestResolve_Ended(t *testing.T) {
	res := Resolve(3.0, twoLines, false, true)
	want := EndSlot(len(twoLines))
	if res.ActiveIndex != want {
		t.Fatalf("ended ActiveIndex = %d, want terminal slot %d", res.ActiveIndex, want)
	}
	// Ended wins even while a line window still covers t.
	if res.InGap {
		t.Fatal("ended state should not report a gap")
	}
}

func TestResolve_ActiveLines(t *testing.T) {
	tests := []struct {
		name     string
		t        float64
		wantSlot int
	}{
		{"first line midpoint", 1.5, Slot(0)},
		{"boundary belongs to next line", 2.0, Slot(1)},
		{"second line", 3.0, Slot(1)},
		{"start of track while playing", 0, Slot(0)},
		{"just before second end", 4.999, Slot(1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(tc.t, twoLines, true, false)
			if res.ActiveIndex != tc.wantSlot {
				t.Fatalf("ActiveIndex = %d, want %d", res.ActiveIndex, tc.wantSlot)
			}
			if res.ContinuousIndex != float64(tc.wantSlot) {
				t.Fatalf("ContinuousIndex = %v, want exactly %d while a line is active", res.ContinuousIndex, tc.wantSlot)
			}
			if res.InGap {
				t.Fatal("InGap = true inside a line window")
			}
		})
	}
}

func TestResolve_PastLastLine(t *testing.T) {
	res := Resolve(6.0, twoLines, true, false)
	if res.ActiveIndex != EndSlot(len(twoLines)) {
		t.Fatalf("ActiveIndex = %d, want post-roll slot %d", res.ActiveIndex, EndSlot(len(twoLines)))
	}
	if !res.InGap {
		t.Fatal("past-last-line time should report a gap")
	}
}

func TestResolve_GapBetweenLines(t *testing.T) {
	gapped := []lyrics.Line{
		{Text: "a", Start: 0, End: 2},
		{Text: "b", Start: 4, End: 6},
	}

	tests := []struct {
		name string
		t    float64
		want float64
	}{
		{"gap start holds previous slot", 2.0, 2},
		{"halfway through transition", 2.3, 2.5},
		{"transition complete", 2.6, 3},
		{"holds next slot until line starts", 3.9, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(tc.t, gapped, true, false)
			if !res.InGap {
				t.Fatal("InGap = false inside a gap")
			}
			if math.Abs(res.ContinuousIndex-tc.want) > 1e-9 {
				t.Fatalf("ContinuousIndex = %v, want %v", res.ContinuousIndex, tc.want)
			}
			if res.ContinuousIndex < 2 || res.ContinuousIndex > 3 {
				t.Fatalf("ContinuousIndex %v escaped the [2, 3] slot interval", res.ContinuousIndex)
			}
			if res.ActiveIndex != int(math.Floor(res.ContinuousIndex)) {
				t.Fatalf("ActiveIndex = %d, want floor(%v)", res.ActiveIndex, res.ContinuousIndex)
			}
		})
	}
}

func TestResolve_ShortGapUsesGapDuration(t *testing.T) {
	// Gap of 0.2s is shorter than the transition cap, so the scroll
	// spans the whole gap.
	short := []lyrics.Line{
		{Text: "a", Start: 0, End: 1},
		{Text: "b", Start: 1.2, End: 2},
	}
	res := Resolve(1.1, short, true, false)
	if math.Abs(res.ContinuousIndex-2.5) > 1e-9 {
		t.Fatalf("ContinuousIndex = %v, want 2.5 at gap midpoint", res.ContinuousIndex)
	}
}

func TestResolve_PreRollEase(t *testing.T) {
	delayed := []lyrics.Line{{Text: "late", Start: 10, End: 12}}

	tests := []struct {
		name string
		t    float64
		want float64
	}{
		{"well before first line", 5, float64(PreRollSlot)},
		{"window start", 9, float64(PreRollSlot)},
		{"window midpoint", 9.5, 1.5},
		{"at first line start resolves active", 10, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(tc.t, delayed, true, false)
			if math.Abs(res.ContinuousIndex-tc.want) > 1e-9 {
				t.Fatalf("ContinuousIndex = %v, want %v", res.ContinuousIndex, tc.want)
			}
		})
	}
}

func TestResolve_EmptySequence(t *testing.T) {
	for _, tt := range []float64{0, 1, 100} {
		res := Resolve(tt, nil, true, false)
		if res.ActiveIndex != PreRollSlot {
			t.Fatalf("empty sequence at t=%v resolved to slot %d, want pre-roll %d", tt, res.ActiveIndex, PreRollSlot)
		}
	}
}

func TestResolve_OverlapFirstMatchWins(t *testing.T) {
	overlapping := []lyrics.Line{
		{Text: "first", Start: 0, End: 4},
		{Text: "second", Start: 2, End: 6},
	}
	res := Resolve(3, overlapping, true, false)
	if res.ActiveIndex != Slot(0) {
		t.Fatalf("overlap resolved to slot %d, want first match slot %d", res.ActiveIndex, Slot(0))
	}
}

func TestResolve_ZeroDurationLine(t *testing.T) {
	solo := []lyrics.Line{{Text: "Solo", Start: 10, End: 10}}

	for _, tt := range []float64{0.5, 9.5, 10, 10.5, 100} {
		res := Resolve(tt, solo, true, false)
		if !res.InGap {
			t.Fatalf("zero-duration line reported active at t=%v: %+v", tt, res)
		}
	}

	// At and past its instant the display holds the post-roll sentinel.
	res := Resolve(10, solo, true, false)
	if res.ActiveIndex != EndSlot(1) {
		t.Fatalf("ActiveIndex at instant = %d, want post-roll %d", res.ActiveIndex, EndSlot(1))
	}
}

func TestResolve_Idempotent(t *testing.T) {
	a := Resolve(2.7, twoLines, true, false)
	b := Resolve(2.7, twoLines, true, false)
	if a != b {
		t.Fatalf("repeated Resolve differs: %+v vs %+v", a, b)
	}
}

func TestResolve_MonotonicDuringPlayback(t *testing.T) {
	lines := []lyrics.Line{
		{Text: "a", Start: 1, End: 2},
		{Text: "b", Start: 3, End: 4.5},
		{Text: "c", Start: 4.5, End: 6},
	}

	prev := math.Inf(-1)
	for step := 0; step <= 800; step++ {
		tt := float64(step) * 0.01
		res := Resolve(tt, lines, true, false)
		if res.ContinuousIndex < prev {
			t.Fatalf("ContinuousIndex decreased at t=%v: %v < %v", tt, res.ContinuousIndex, prev)
		}
		prev = res.ContinuousIndex
	}
}

func TestWeights(t *testing.T) {
	res := Resolve(1.5, twoLines, true, false) // slot 2 active
	w := Weights(res, len(twoLines))

	if len(w) != 2 {
		t.Fatalf("len(weights) = %d, want 2", len(w))
	}
	if w[0].Opacity != 1 || w[0].Scale != 1 {
		t.Fatalf("active line weight = %+v, want full opacity and scale", w[0])
	}
	if w[1].Opacity >= w[0].Opacity {
		t.Fatalf("neighbor opacity %v not below active %v", w[1].Opacity, w[0].Opacity)
	}
	if w[1].Scale >= w[0].Scale {
		t.Fatalf("neighbor scale %v not below active %v", w[1].Scale, w[0].Scale)
	}
}

func TestWeights_GapDimsEverything(t *testing.T) {
	gapped := []lyrics.Line{
		{Text: "a", Start: 0, End: 2},
		{Text: "b", Start: 10, End: 12},
	}
	active := Weights(Resolve(1, gapped, true, false), 2)
	inGap := Weights(Resolve(5, gapped, true, false), 2)

	for i := range inGap {
		if inGap[i].Opacity >= active[0].Opacity {
			t.Fatalf("gap opacity[%d] = %v, want dimmed below %v", i, inGap[i].Opacity, active[0].Opacity)
		}
	}
}
