package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgressTime(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    float64
		matched bool
	}{
		{
			name:    "typical stats line",
			line:    "frame= 1234 fps= 45 q=28.0 size=   10240KiB time=00:01:23.45 bitrate=1006.3kbits/s speed=1.5x",
			want:    83,
			matched: true,
		},
		{
			name:    "over an hour",
			line:    "time=01:02:03.99",
			want:    3723,
			matched: true,
		},
		{
			name:    "no stats field",
			line:    "Stream mapping:",
			matched: false,
		},
		{
			name:    "negative start time ignored",
			line:    "time=N/A",
			matched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProgressTime(tt.line)
			assert.Equal(t, tt.matched, ok)
			if tt.matched {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 50, ProgressPercent(30, 60))
	assert.Equal(t, 100, ProgressPercent(61, 60))
	assert.Equal(t, 0, ProgressPercent(10, 0))
	assert.Equal(t, 33, ProgressPercent(20, 60))
}

func TestMediaInfoFromResult(t *testing.T) {
	t.Run("full source", func(t *testing.T) {
		result := &ProbeResult{
			Format: ProbeFormat{Duration: "120.5"},
			Streams: []ProbeStream{
				{Index: 0, CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080},
				{Index: 1, CodecType: "audio", CodecName: "aac", Channels: 2, Tags: map[string]string{"language": "eng"}},
				{Index: 2, CodecType: "audio", CodecName: "ac3", Channels: 6, Tags: map[string]string{"title": "Surround"}},
				{Index: 3, CodecType: "subtitle", CodecName: "subrip", Tags: map[string]string{"language": "ger"}},
				{Index: 4, CodecType: "data"},
			},
		}

		info, err := MediaInfoFromResult(result)
		require.NoError(t, err)
		assert.Equal(t, 120.5, info.Duration)
		assert.Equal(t, 1920, info.Width)
		assert.Equal(t, 1080, info.Height)
		require.Len(t, info.VideoTracks, 1)
		require.Len(t, info.AudioTracks, 2)
		require.Len(t, info.SubtitleTracks, 1)

		// Title tag wins over language for track names.
		assert.Equal(t, "eng", info.AudioTracks[0].Name())
		assert.Equal(t, "Surround", info.AudioTracks[1].Name())
	})

	t.Run("missing duration", func(t *testing.T) {
		result := &ProbeResult{
			Streams: []ProbeStream{{CodecType: "video", Width: 640, Height: 480}},
		}
		_, err := MediaInfoFromResult(result)
		assert.ErrorIs(t, err, ErrNoDuration)
	})

	t.Run("audio only source", func(t *testing.T) {
		result := &ProbeResult{
			Format:  ProbeFormat{Duration: "10"},
			Streams: []ProbeStream{{CodecType: "audio", Channels: 2}},
		}
		_, err := MediaInfoFromResult(result)
		assert.ErrorIs(t, err, ErrNoVideoTrack)
	})
}

func TestScanCRLines(t *testing.T) {
	advance, token, err := scanCRLines([]byte("abc\rdef\n"), false)
	require.NoError(t, err)
	assert.Equal(t, 4, advance)
	assert.Equal(t, "abc", string(token))

	advance, token, err = scanCRLines([]byte("tail"), true)
	require.NoError(t, err)
	assert.Equal(t, 4, advance)
	assert.Equal(t, "tail", string(token))
}
