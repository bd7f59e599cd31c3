package worker

import (
	"strings"
	"testing"

	"github.com/nukevideo/nukevideo/internal/catalog"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestBuildStreamArgs_Video(t *testing.T) {
	cat := catalog.Default()
	stream := &models.Stream{
		Kind:        models.StreamKindVideo,
		SourceIndex: 0,
		Params: models.JSONMap{
			"video_codec":   "libx264",
			"resolution":    float64(480),
			"video_bitrate": "1500k",
			"preset":        "medium",
			"unknown_key":   "ignored",
			"crf":           nil,
			"profile":       "",
		},
	}

	args := BuildStreamArgs(cat, stream, "in.mp4", "out.mp4")
	joined := strings.Join(args, " ")

	assert.True(t, strings.HasPrefix(joined, "-i in.mp4 "))
	assert.True(t, strings.HasSuffix(joined, " out.mp4"))
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-vf scale=-2:480")
	assert.Contains(t, joined, "-b:v 1500k")
	assert.Contains(t, joined, "-preset medium")
	assert.Contains(t, joined, "-map 0:0 -an -sn")
	assert.NotContains(t, joined, "unknown_key")
	assert.NotContains(t, joined, "-crf")
	assert.NotContains(t, joined, "-profile:v")

	// Catalog order is stable: codec precedes bitrate.
	assert.Less(t, strings.Index(joined, "-c:v"), strings.Index(joined, "-b:v"))
}

func TestBuildStreamArgs_Audio(t *testing.T) {
	cat := catalog.Default()
	stream := &models.Stream{
		Kind:        models.StreamKindAudio,
		SourceIndex: 2,
		Params: models.JSONMap{
			"audio_codec":   "aac",
			"audio_bitrate": "128k",
			"channels":      "2",
		},
	}

	args := BuildStreamArgs(cat, stream, "in.mkv", "out.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-c:a aac")
	assert.Contains(t, joined, "-b:a 128k")
	assert.Contains(t, joined, "-ac 2")
	assert.Contains(t, joined, "-map 0:2 -vn -sn")
	// Video parameters never leak into audio streams.
	assert.NotContains(t, joined, "-c:v")
}

func TestBuildStreamArgs_BooleanFlag(t *testing.T) {
	cat := catalog.Default()

	t.Run("true emits flag", func(t *testing.T) {
		stream := &models.Stream{
			Kind:        models.StreamKindAudio,
			SourceIndex: 1,
			Params:      models.JSONMap{"normalize": true},
		}
		joined := strings.Join(BuildStreamArgs(cat, stream, "in", "out"), " ")
		assert.Contains(t, joined, "-af loudnorm")
	})

	t.Run("false is silent", func(t *testing.T) {
		stream := &models.Stream{
			Kind:        models.StreamKindAudio,
			SourceIndex: 1,
			Params:      models.JSONMap{"normalize": false},
		}
		joined := strings.Join(BuildStreamArgs(cat, stream, "in", "out"), " ")
		assert.NotContains(t, joined, "loudnorm")
	})
}

func TestBuildMuxedArgs(t *testing.T) {
	cat := catalog.Default()
	stream := &models.Stream{
		Kind:        models.StreamKindDownload,
		SourceIndex: 0,
		Params: models.JSONMap{
			"video_codec":   "libx264",
			"resolution":    float64(720),
			"audio_codec":   "aac",
			"audio_bitrate": "192k",
		},
	}

	t.Run("mp4", func(t *testing.T) {
		args := BuildMuxedArgs(cat, stream, models.OutputFormatMP4, "in.mkv", "out.mp4")
		joined := strings.Join(args, " ")

		assert.Contains(t, joined, "-map 0:v:0")
		assert.Contains(t, joined, "-map 0:a?")
		assert.Contains(t, joined, "-map 0:s?")
		assert.Contains(t, joined, "-c:s mov_text")
		assert.Contains(t, joined, "-movflags +faststart")
		// Video params land between the video and audio maps.
		assert.Less(t, strings.Index(joined, "-map 0:v:0"), strings.Index(joined, "-c:v libx264"))
		assert.Less(t, strings.Index(joined, "-c:v libx264"), strings.Index(joined, "-map 0:a?"))
		assert.Less(t, strings.Index(joined, "-map 0:a?"), strings.Index(joined, "-c:a aac"))
	})

	t.Run("mkv", func(t *testing.T) {
		args := BuildMuxedArgs(cat, stream, models.OutputFormatMKV, "in.mkv", "out.mkv")
		joined := strings.Join(args, " ")

		assert.Contains(t, joined, "-c:s srt")
		assert.NotContains(t, joined, "faststart")
	})
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "480", formatValue(float64(480)))
	assert.Equal(t, "23.5", formatValue(23.5))
	assert.Equal(t, "x", formatValue("x"))
	assert.Equal(t, "1", formatValue(true))
}
