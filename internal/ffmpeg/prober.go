package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Probe errors.
var (
	// ErrNoVideoTrack indicates the source carries no video stream.
	ErrNoVideoTrack = errors.New("source has no video track")
	// ErrNoDuration indicates the container reports no finite duration.
	ErrNoDuration = errors.New("source has no duration")
)

// ProbeResult contains the raw ffprobe output.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name"`
	CodecType     string            `json:"codec_type"` // video, audio, subtitle, data
	Width         int               `json:"width,omitempty"`
	Height        int               `json:"height,omitempty"`
	SampleRate    string            `json:"sample_rate,omitempty"`
	Channels      int               `json:"channels,omitempty"`
	ChannelLayout string            `json:"channel_layout,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// Track is one container stream in a probed source.
type Track struct {
	// Index is the stream index within the container.
	Index int
	// Codec is the codec name reported by ffprobe.
	Codec string
	// Width and Height are set for video tracks.
	Width  int
	Height int
	// Channels is set for audio tracks.
	Channels int
	// Language is the language tag if present.
	Language string
	// Title is the title tag if present.
	Title string
}

// Name returns the display name for the track: the title tag, falling back
// to the language tag.
func (t Track) Name() string {
	if t.Title != "" {
		return t.Title
	}
	return t.Language
}

// MediaInfo is the planning view of a probed source.
type MediaInfo struct {
	// Duration is the source duration in seconds.
	Duration float64
	// Width and Height come from the first video track.
	Width  int
	Height int

	VideoTracks    []Track
	AudioTracks    []Track
	SubtitleTracks []Track
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new media prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe runs ffprobe against a URL or file and returns the raw result.
func (p *Prober) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		url,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return &result, nil
}

// ProbeMedia probes a source for planning. It fails when the container
// reports no duration or carries no video track, since neither can be
// transcoded into a ladder.
func (p *Prober) ProbeMedia(ctx context.Context, url string) (*MediaInfo, error) {
	result, err := p.Probe(ctx, url)
	if err != nil {
		return nil, err
	}
	return MediaInfoFromResult(result)
}

// MediaInfoFromResult converts a raw probe result into the planning view.
func MediaInfoFromResult(result *ProbeResult) (*MediaInfo, error) {
	info := &MediaInfo{}

	if result.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}
	if info.Duration <= 0 {
		return nil, ErrNoDuration
	}

	for _, stream := range result.Streams {
		track := Track{
			Index:    stream.Index,
			Codec:    stream.CodecName,
			Width:    stream.Width,
			Height:   stream.Height,
			Channels: stream.Channels,
			Language: stream.Tags["language"],
			Title:    stream.Tags["title"],
		}

		switch stream.CodecType {
		case "video":
			info.VideoTracks = append(info.VideoTracks, track)
		case "audio":
			info.AudioTracks = append(info.AudioTracks, track)
		case "subtitle":
			info.SubtitleTracks = append(info.SubtitleTracks, track)
		}
	}

	if len(info.VideoTracks) == 0 {
		return nil, ErrNoVideoTrack
	}

	info.Width = info.VideoTracks[0].Width
	info.Height = info.VideoTracks[0].Height

	return info, nil
}

// ProbeDimensions probes the first video stream of a file and returns its
// dimensions. Used to record output dimensions after a transcode.
func (p *Prober) ProbeDimensions(ctx context.Context, path string) (width, height int, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-select_streams", "v:0",
		"-print_format", "json",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, 0, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	if len(result.Streams) == 0 {
		return 0, 0, ErrNoVideoTrack
	}

	return result.Streams[0].Width, result.Streams[0].Height, nil
}
