package export

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/versohq/verso-agent/internal/lyrics"
)

// GenerateSRT serializes a timed lyric sequence as SubRip text:
// 1-based block numbers, "start --> end" ranges, blocks separated by a
// blank line. This is a wire format — downstream players depend on the
// exact shape.
func GenerateSRT(lines []lyrics.Line) string {
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatSRTTime(l.Start), formatSRTTime(l.End))
		b.WriteString(l.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// formatSRTTime renders seconds as HH:MM:SS,mmm. Milliseconds are
// truncated, not rounded, so a serialized time never lands past the
// source instant.
func formatSRTTime(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	// The epsilon absorbs binary float noise (0.355*1000 = 354.999...)
	// without turning truncation into rounding.
	ms := int64(sec*1000 + 1e-6)
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	frac := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, frac)
}

var srtTimeRange = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2}),(\d{3}) --> (\d{2}):(\d{2}):(\d{2}),(\d{3})$`)

// ParseSRT reads SubRip text back into a lyric sequence. Block numbers
// are ignored; ordering comes from the file. Malformed blocks are an
// error, not skipped.
func ParseSRT(data string) ([]lyrics.Line, error) {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	var out []lyrics.Line

	for _, block := range strings.Split(strings.TrimSpace(data), "\n\n") {
		rows := strings.Split(strings.TrimSpace(block), "\n")
		if len(rows) == 1 && rows[0] == "" {
			continue
		}
		if len(rows) < 2 {
			return nil, fmt.Errorf("subtitle block %d: missing time range", len(out)+1)
		}

		m := srtTimeRange.FindStringSubmatch(rows[1])
		if m == nil {
			return nil, fmt.Errorf("subtitle block %d: bad time range %q", len(out)+1, rows[1])
		}

		out = append(out, lyrics.Line{
			Text:  strings.Join(rows[2:], "\n"),
			Start: srtTimeSeconds(m[1], m[2], m[3], m[4]),
			End:   srtTimeSeconds(m[5], m[6], m[7], m[8]),
		})
	}
	return out, nil
}

func srtTimeSeconds(h, m, s, ms string) float64 {
	hi, _ := strconv.Atoi(h)
	mi, _ := strconv.Atoi(m)
	si, _ := strconv.Atoi(s)
	msi, _ := strconv.Atoi(ms)
	return float64(hi)*3600 + float64(mi)*60 + float64(si) + float64(msi)/1000
}
