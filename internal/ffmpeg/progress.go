package ffmpeg

import (
	"math"
	"regexp"
	"strconv"
)

// progressTimeRe matches the time= field ffmpeg prints on its stats line.
var progressTimeRe = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.\d+`)

// ParseProgressTime extracts the transcoded position in seconds from one
// line of ffmpeg stderr output. Returns false when the line carries no
// stats field.
func ParseProgressTime(line string) (float64, bool) {
	m := progressTimeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])

	return float64(hours*3600 + minutes*60 + seconds), true
}

// ProgressPercent converts a position into a whole percentage of the total
// duration, clamped to 100.
func ProgressPercent(position, duration float64) int {
	if duration <= 0 {
		return 0
	}
	pct := int(math.Round(position / duration * 100))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}
