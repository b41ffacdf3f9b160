package export

import (
	"fmt"
	"strings"

	"github.com/versohq/verso-agent/internal/lyrics"
)

const assHeader = `[Script Info]
Title: %s
ScriptType: v4.00+
PlayResX: 384
PlayResY: 288
Timer: 100.0000

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Arial,36,&H00FFFFFF,&H000000FF,&H00000000,&H64000000,0,0,0,0,100,100,0,0,1,1,0,2,10,10,10,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// GenerateASS serializes the sequence as an Advanced SubStation script
// with per-rune karaoke wipe timing: each rune gets an equal share of
// the line's window as a {\kN} tag (N in centiseconds).
func GenerateASS(lines []lyrics.Line, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, assHeader, title)

	for _, l := range lines {
		durationCS := int(l.Duration() * 100)
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(l.Start), formatASSTime(l.End), karaokeText(l.Text, durationCS))
	}
	return b.String()
}

// formatASSTime renders seconds as h:mm:ss.cs (centisecond precision,
// single-digit hours — the ASS event format).
func formatASSTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	cs := int64(sec*100 + 1e-6)
	h := cs / 360000
	m := (cs % 360000) / 6000
	s := (cs % 6000) / 100
	frac := cs % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, frac)
}

// karaokeText splits the line into runes and assigns each an equal
// slice of the window.
func karaokeText(text string, durationCS int) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return ""
	}
	per := durationCS / len(runes)
	if per < 0 {
		per = 0
	}
	var b strings.Builder
	for _, r := range runes {
		fmt.Fprintf(&b, "{\\k%d}%c", per, r)
	}
	return b.String()
}
