// Package worker executes the per-stream transcode work: argument
// construction, ffmpeg runs, artifact upload, and auxiliary outputs like
// thumbnails and storyboards.
package worker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nukevideo/nukevideo/internal/catalog"
	"github.com/nukevideo/nukevideo/internal/models"
)

// BuildStreamArgs renders the ffmpeg argument list for one ladder stream.
// Parameters come out in catalog order so runs are reproducible. The map
// selects the source track and the strip flags drop everything else.
func BuildStreamArgs(cat *catalog.Catalog, stream *models.Stream, input, output string) []string {
	args := []string{"-i", input}
	args = append(args, renderParams(cat.ForKind(stream.Kind), stream.Params)...)
	args = append(args, "-map", fmt.Sprintf("0:%d", stream.SourceIndex))

	switch stream.Kind {
	case models.StreamKindVideo:
		args = append(args, "-an", "-sn")
	case models.StreamKindAudio:
		args = append(args, "-vn", "-sn")
	case models.StreamKindSubtitle:
		args = append(args, "-vn", "-an")
	}

	return append(args, output)
}

// BuildMuxedArgs renders the ffmpeg argument list for a single-file
// download. All audio and subtitle tracks are carried over, subtitles
// re-encoded to the container's text codec.
func BuildMuxedArgs(cat *catalog.Catalog, stream *models.Stream, format models.OutputFormat, input, output string) []string {
	params := cat.ForKind(stream.Kind)
	var videoParams, audioParams []catalog.Parameter
	for _, p := range params {
		if p.AppliesTo(models.StreamKindVideo) {
			videoParams = append(videoParams, p)
		}
		if p.AppliesTo(models.StreamKindAudio) {
			audioParams = append(audioParams, p)
		}
	}

	args := []string{"-i", input}
	args = append(args, "-map", "0:v:0")
	args = append(args, renderParams(videoParams, stream.Params)...)
	args = append(args, "-map", "0:a?")
	args = append(args, renderParams(audioParams, stream.Params)...)
	args = append(args, "-map", "0:s?")

	if format == models.OutputFormatMP4 {
		args = append(args, "-c:s", "mov_text", "-movflags", "+faststart")
	} else {
		args = append(args, "-c:s", "srt")
	}

	return append(args, output)
}

// renderParams turns stream params into ffmpeg arguments using the catalog
// flag templates. Unknown keys, nil values, and empty strings are skipped.
// Boolean parameters emit their flag only when the value is true.
func renderParams(params []catalog.Parameter, values models.JSONMap) []string {
	var args []string
	for _, p := range params {
		value, ok := values[p.Name]
		if !ok || value == nil {
			continue
		}

		if p.Boolean {
			if truthy(value) {
				args = append(args, renderFlag(p.Flag, value)...)
			}
			continue
		}

		s := formatValue(value)
		if s == "" {
			continue
		}
		args = append(args, renderFlag(p.Flag, s)...)
	}
	return args
}

// renderFlag substitutes the value into a flag template and splits it into
// argument words.
func renderFlag(flag string, value any) []string {
	rendered := flag
	if strings.Contains(flag, "%s") {
		rendered = fmt.Sprintf(flag, formatValue(value))
	}
	return strings.Fields(rendered)
}

// formatValue converts a JSON-decoded param value to its argument form.
// Whole-number floats render without a decimal point.
func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truthy reports whether a JSON-decoded value counts as true.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}
