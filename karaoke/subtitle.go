// Package karaoke builds a karaoke video from a still-image slideshow, an
// audio track and time-stamped lyric lines.
package karaoke

import (
	"fmt"
	"math"
	"strings"
)

// LyricLine is one timed lyric. JSON field names match what the web client
// submits in the `lyrics` form field.
type LyricLine struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// SrtTime formats seconds as an SRT timestamp, HH:MM:SS,mmm. Rounding
// happens at millisecond precision so a fraction near the next second
// carries over instead of printing a four-digit millisecond part.
func SrtTime(totalSeconds float64) string {
	millis := int(math.Round(totalSeconds * 1000))
	hours := millis / 3600000
	minutes := millis / 60000 % 60
	seconds := millis / 1000 % 60

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis%1000)
}

// BuildSRT renders lyric lines as an SRT subtitle body: 1-based index, time
// range, text, blank line between entries. A line whose end does not come
// after its start is clamped to a 100 ms minimum so the subtitle renderer
// never sees an inverted range.
func BuildSRT(lines []LyricLine) string {
	var b strings.Builder
	for i, line := range lines {
		end := line.EndTime
		if end < line.StartTime+0.1 {
			end = line.StartTime + 0.1
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, SrtTime(line.StartTime), SrtTime(end), line.Text)
	}
	return b.String()
}
