// Package lyrics defines the timed lyric line model shared by the
// resolver, renderers and export pipeline. A sequence is built once
// (from manual timing marks or an alignment service) and treated as
// immutable afterwards; edits rebuild the whole sequence.
package lyrics

import (
	"crypto/rand"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Line is one lyric line with its time window in seconds.
// The window is half-open: the line is active for Start <= t < End.
// End <= Start marks a degenerate line that is never active.
type Line struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the length of the line's window, never negative.
func (l Line) Duration() float64 {
	if l.End <= l.Start {
		return 0
	}
	return l.End - l.Start
}

// Contains reports whether t falls inside the half-open window.
func (l Line) Contains(t float64) bool {
	return t >= l.Start && t < l.End
}

// NormalizeText returns the line text in NFC form with surrounding
// whitespace removed. Alignment services and pasted lyrics disagree on
// composition; subtitle output must not.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// SplitText breaks a raw lyric blob into normalized lines, dropping
// blanks.
func SplitText(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, "\n") {
		s = NormalizeText(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DeriveTiming builds a sequence from manual timing marks: line i
// starts at marks[i] and ends at the next mark, the last line ends at
// the track duration. Marks beyond the text count are ignored; lines
// without a mark are dropped.
func DeriveTiming(texts []string, marks []float64, trackDuration float64) []Line {
	n := len(texts)
	if len(marks) < n {
		n = len(marks)
	}
	lines := make([]Line, 0, n)
	for i := 0; i < n; i++ {
		end := trackDuration
		if i+1 < n {
			end = marks[i+1]
		}
		lines = append(lines, Line{
			Text:  NormalizeText(texts[i]),
			Start: marks[i],
			End:   end,
		})
	}
	return lines
}

// SortByStart returns a copy of lines ordered by ascending start time.
// The sort is stable so overlapping input keeps its original relative
// order, which first-match resolution depends on.
func SortByStart(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// Validate checks the invariants upstream producers are expected to
// hold. Out-of-order or degenerate lines are reported, not fixed; the
// resolver tolerates both.
func Validate(lines []Line) error {
	for i, l := range lines {
		if l.Start < 0 {
			return fmt.Errorf("line %d: negative start time %v", i+1, l.Start)
		}
		if i > 0 && l.Start < lines[i-1].Start {
			return fmt.Errorf("line %d: start %v precedes line %d start %v", i+1, l.Start, i, lines[i-1].Start)
		}
	}
	return nil
}

// TotalDuration returns the end of the last non-degenerate window.
func TotalDuration(lines []Line) float64 {
	var max float64
	for _, l := range lines {
		if l.End > max {
			max = l.End
		}
	}
	return max
}

// NewID returns a random identifier for projects and jobs.
func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
