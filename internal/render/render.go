// Package render turns resolver output into visual frame state and
// rasterizes it. Every animation style implements the one Renderer
// interface; the preview loop and the export pipeline depend on the
// interface only, never on a style's internals.
package render

import (
	"fmt"

	"github.com/versohq/verso-agent/internal/interp"
	"github.com/versohq/verso-agent/internal/lyrics"
	"github.com/versohq/verso-agent/internal/resolver"
)

// LineState is the computed visual state of one lyric line for one
// frame.
type LineState struct {
	Index   int     // real line index
	Text    string  //
	Opacity float64 // 0..1
	Scale   float64 // relative text scale
	OffsetY float64 // vertical offset from center, in line heights
	Wipe    float64 // 0..1 reveal progress (karaoke/typewriter styles)
}

// FrameState is the full per-line state for one frame. It is a pure
// function of the renderer inputs, which is what makes frame-stepped
// export reproducible.
type FrameState []LineState

// Renderer computes frame state from the resolver output. t is the
// clock time the resolution was computed for; wipe styles need it to
// track progress inside the active line.
type Renderer interface {
	Name() string
	Frame(t float64, res resolver.Resolution, lines []lyrics.Line) FrameState
}

// StyleKind names the built-in animation styles.
const (
	StyleScroll     = "scroll"
	StyleKaraoke    = "karaoke"
	StyleTypewriter = "typewriter"
)

// NewRenderer returns the renderer for a style kind.
func NewRenderer(kind string) (Renderer, error) {
	switch kind {
	case StyleScroll, "":
		return scrollRenderer{}, nil
	case StyleKaraoke:
		return karaokeRenderer{}, nil
	case StyleTypewriter:
		return typewriterRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown style %q", kind)
	}
}

// baseFrame computes the offsets and distance weights every style
// shares.
func baseFrame(res resolver.Resolution, lines []lyrics.Line) FrameState {
	weights := resolver.Weights(res, len(lines))
	frame := make(FrameState, len(lines))
	for i, l := range lines {
		frame[i] = LineState{
			Index:   i,
			Text:    l.Text,
			Opacity: weights[i].Opacity,
			Scale:   weights[i].Scale,
			OffsetY: float64(resolver.Slot(i)) - res.ContinuousIndex,
		}
	}
	return frame
}

// activeProgress returns the fraction of the active line's window that
// has elapsed at t, or -1 if no real line is active.
func activeProgress(t float64, res resolver.Resolution, lines []lyrics.Line) (int, float64) {
	if res.InGap {
		return -1, 0
	}
	i := res.ActiveIndex - resolver.SlotLead
	if i < 0 || i >= len(lines) {
		return -1, 0
	}
	return i, interp.InvLerp(lines[i].Start, lines[i].End, t)
}

type scrollRenderer struct{}

func (scrollRenderer) Name() string { return StyleScroll }

func (scrollRenderer) Frame(t float64, res resolver.Resolution, lines []lyrics.Line) FrameState {
	frame := baseFrame(res, lines)
	// Fully revealed text; the scroll style animates position only.
	for i := range frame {
		frame[i].Wipe = 1
	}
	return frame
}

type karaokeRenderer struct{}

func (karaokeRenderer) Name() string { return StyleKaraoke }

func (karaokeRenderer) Frame(t float64, res resolver.Resolution, lines []lyrics.Line) FrameState {
	frame := baseFrame(res, lines)
	for i := range frame {
		frame[i].Wipe = 1
	}
	if i, p := activeProgress(t, res, lines); i >= 0 {
		frame[i].Wipe = p
	}
	return frame
}

type typewriterRenderer struct{}

func (typewriterRenderer) Name() string { return StyleTypewriter }

func (typewriterRenderer) Frame(t float64, res resolver.Resolution, lines []lyrics.Line) FrameState {
	frame := baseFrame(res, lines)
	for i := range frame {
		// Past lines stay fully typed, upcoming lines start empty.
		if float64(resolver.Slot(i)) <= res.ContinuousIndex {
			frame[i].Wipe = 1
		}
	}
	if i, p := activeProgress(t, res, lines); i >= 0 {
		frame[i].Wipe = p
	}
	return frame
}
