// Package resolver maps a playback clock position to the active lyric
// line and a fractional scroll position. Resolve is a pure function of
// its arguments so renderers and the export pipeline can share it and
// tests need no live transport.
//
// The slot space pads the real sequence with two sentinel slots on each
// side: real line i occupies slot i+2, slot 1 is the pre-roll sentinel
// shown before playback reaches the first line, and slot len+2 is the
// post-roll sentinel shown after the last line. Sentinels let renderers
// treat the boundaries like any other scroll position.
package resolver

import (
	"math"

	"github.com/versohq/verso-agent/internal/interp"
	"github.com/versohq/verso-agent/internal/lyrics"
)

const (
	// SlotLead is the number of sentinel slots before the first real line.
	SlotLead = 2

	// PreRollWindow is how long before the first line the display starts
	// easing from the pre-roll sentinel toward it, in seconds.
	PreRollWindow = 1.0

	// GapTransition caps how long the scroll between two lines takes
	// inside a gap, in seconds. Shorter gaps transition over their full
	// length instead.
	GapTransition = 0.6
)

// Resolution is the resolver output and the contract boundary with any
// renderer.
type Resolution struct {
	// ActiveIndex is the integer slot to spotlight.
	ActiveIndex int `json:"active_index"`
	// ContinuousIndex carries the fractional scroll position between
	// slots. Equal to ActiveIndex while a line is active.
	ContinuousIndex float64 `json:"continuous_index"`
	// InGap is true when no line covers the current time; renderers dim
	// everything instead of spotlighting a slot.
	InGap bool `json:"in_gap"`
}

// Slot returns the slot a real line index occupies.
func Slot(i int) int { return i + SlotLead }

// PreRollSlot is the sentinel slot immediately before the first line.
const PreRollSlot = SlotLead - 1

// EndSlot returns the post-roll sentinel slot for a sequence length.
func EndSlot(n int) int { return n + SlotLead }

// Resolve maps a clock time to a slot position. It never panics;
// malformed or empty input degrades to the pre-roll sentinel. When
// windows overlap the first match in sequence order wins.
func Resolve(t float64, lines []lyrics.Line, playing, ended bool) Resolution {
	if ended {
		return locked(EndSlot(len(lines)))
	}

	// Nothing has played yet; keep every line hidden until the user
	// presses play.
	if t == 0 && !playing {
		return locked(PreRollSlot)
	}

	if len(lines) == 0 {
		return locked(PreRollSlot)
	}

	for i, l := range lines {
		if l.Contains(t) {
			return Resolution{
				ActiveIndex:     Slot(i),
				ContinuousIndex: float64(Slot(i)),
				InGap:           false,
			}
		}
	}

	return gapResolution(t, lines)
}

func locked(slot int) Resolution {
	return Resolution{ActiveIndex: slot, ContinuousIndex: float64(slot)}
}

// gapResolution handles every time not covered by a line window.
func gapResolution(t float64, lines []lyrics.Line) Resolution {
	// First line in sequence order whose window starts after t.
	next := -1
	for i, l := range lines {
		if l.Start > t {
			next = i
			break
		}
	}

	var continuous float64
	switch {
	case next == 0:
		// Before the first line: hold the pre-roll sentinel, easing
		// toward the first slot over the final PreRollWindow seconds.
		frac := interp.InvLerp(lines[0].Start-PreRollWindow, lines[0].Start, t)
		continuous = interp.Lerp(float64(PreRollSlot), float64(Slot(0)), frac)

	case next == -1:
		// Past the last line's window: hold the post-roll sentinel.
		continuous = float64(EndSlot(len(lines)))

	default:
		// Between two lines: scroll from the previous slot to the next
		// over a window anchored at the gap start, then hold at the
		// next slot so the upcoming line is displayed early.
		prev := next - 1
		gapStart := lines[prev].End
		window := math.Min(GapTransition, lines[next].Start-gapStart)
		var frac float64
		if window <= 0 {
			frac = 1
		} else {
			frac = interp.Clamp01((t - gapStart) / window)
		}
		continuous = interp.Lerp(float64(Slot(prev)), float64(Slot(next)), frac)
	}

	return Resolution{
		ActiveIndex:     int(math.Floor(continuous)),
		ContinuousIndex: continuous,
		InGap:           true,
	}
}

// LineWeight is the distance-based visual weight of one real line.
type LineWeight struct {
	Opacity float64
	Scale   float64
}

const (
	weightFalloff = 3.0
	gapDim        = 0.4
	minScale      = 0.85
)

// Weights computes per-line opacity and scale from the distance between
// each line's slot and the continuous index. During a gap every line is
// dimmed rather than one spotlighted.
func Weights(res Resolution, n int) []LineWeight {
	out := make([]LineWeight, n)
	for i := range out {
		w := interp.DistanceWeight(float64(Slot(i))-res.ContinuousIndex, weightFalloff)
		opacity := w
		if res.InGap {
			opacity *= gapDim
		}
		out[i] = LineWeight{
			Opacity: opacity,
			Scale:   interp.Lerp(minScale, 1.0, w),
		}
	}
	return out
}
