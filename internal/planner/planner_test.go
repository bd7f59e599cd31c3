package planner

import (
	"context"
	"testing"
	"time"

	"github.com/nukevideo/nukevideo/internal/balancer"
	"github.com/nukevideo/nukevideo/internal/config"
	"github.com/nukevideo/nukevideo/internal/database"
	"github.com/nukevideo/nukevideo/internal/ffmpeg"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "7f9c2ba4-e88f-11eb-9a03-0242ac130003"

type fakeProber struct {
	info *ffmpeg.MediaInfo
	err  error
}

func (f *fakeProber) ProbeMedia(_ context.Context, _ string) (*ffmpeg.MediaInfo, error) {
	return f.info, f.err
}

type fakePresigner struct{}

func (fakePresigner) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://example.test/" + key, nil
}

func setupPlannerTest(t *testing.T, info *ffmpeg.MediaInfo) (*Planner, *database.DB, *models.Template) {
	db, err := database.New(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      ":memory:",
		LogLevel: "silent",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	nodes := repository.NewNodeRepository(db.DB)
	require.NoError(t, nodes.Create(ctx, &models.Node{Name: "node-a", Capacity: 4}))

	templates := repository.NewTemplateRepository(db.DB)
	template := &models.Template{
		UserID: testUserID,
		Name:   "default",
		Spec: models.TemplateSpec{
			OutputFormat: models.OutputFormatHLS,
			Variants: []models.VariantSpec{
				{Resolution: 2160, Params: map[string]any{"video_codec": "libx265"}},
				{Resolution: 1080, Params: map[string]any{"video_codec": "libx264"}},
				{Resolution: 480, Params: map[string]any{"video_codec": "libx264"}},
			},
			Audio: models.AudioSpec{
				Shared: map[string]any{"audio_codec": "aac"},
				Channels: map[string]map[string]any{
					"2": {"audio_bitrate": "128k", "channels": "2"},
					"6": {"audio_bitrate": "384k", "channels": "6"},
				},
			},
		},
	}
	require.NoError(t, templates.Create(ctx, template))

	p := New(
		db,
		templates,
		balancer.New(nodes),
		&fakeProber{info: info},
		fakePresigner{},
		config.IngestionConfig{
			AllowedContentTypes: []string{"video/mp4", "video/x-matroska", "video/matroska"},
		},
	)
	return p, db, template
}

func defaultInfo() *ffmpeg.MediaInfo {
	return &ffmpeg.MediaInfo{
		Duration: 600,
		Width:    1280,
		Height:   720,
		VideoTracks: []ffmpeg.Track{
			{Index: 0, Codec: "h264", Width: 1280, Height: 720},
		},
		AudioTracks: []ffmpeg.Track{
			{Index: 1, Codec: "aac", Channels: 2, Language: "eng"},
			{Index: 2, Codec: "ac3", Channels: 6, Title: "Surround"},
			{Index: 3, Codec: "mp3", Channels: 1},
		},
		SubtitleTracks: []ffmpeg.Track{
			{Index: 4, Codec: "subrip", Language: "ger"},
		},
	}
}

func defaultEvent(templateID models.ULID) UploadEvent {
	return UploadEvent{
		Key:         "tmp-videos/clip.mp4",
		Size:        1 << 20,
		ContentType: "video/mp4",
		UserID:      testUserID,
		TemplateID:  templateID.String(),
		Name:        "clip.mp4",
	}
}

func TestBuildPlan_HLS(t *testing.T) {
	p, db, template := setupPlannerTest(t, defaultInfo())
	ctx := context.Background()

	item, err := p.BuildPlan(ctx, defaultEvent(template.ID))
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, models.OutputFormatHLS, item.OutputFormat)
	assert.Equal(t, 600.0, item.Duration)
	assert.False(t, item.NodeID.IsZero())

	streams := repository.NewStreamRepository(db.DB)

	// 720p source: 2160p variant dropped, 1080p dropped, 480p kept.
	videos, err := streams.GetByMediaItemAndKind(ctx, item.ID, models.StreamKindVideo)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "480p", videos[0].Name)
	assert.Equal(t, float64(480), videos[0].Params["resolution"])
	assert.Equal(t, "libx264", videos[0].Params["video_codec"])

	// Stereo and 5.1 tracks match channel configs, mono is skipped.
	audios, err := streams.GetByMediaItemAndKind(ctx, item.ID, models.StreamKindAudio)
	require.NoError(t, err)
	require.Len(t, audios, 2)
	assert.Equal(t, "eng", audios[0].Name)
	assert.Equal(t, "aac", audios[0].Params["audio_codec"])
	assert.Equal(t, "128k", audios[0].Params["audio_bitrate"])
	assert.Equal(t, "Surround", audios[1].Name)
	assert.Equal(t, "384k", audios[1].Params["audio_bitrate"])

	subs, err := streams.GetByMediaItemAndKind(ctx, item.ID, models.StreamKindSubtitle)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "ger", subs[0].Name)
	assert.Contains(t, subs[0].Path, ".vtt")

	// The uploaded source is recorded as a completed original stream.
	original, err := streams.GetOriginal(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, original)
	assert.Equal(t, models.StatusCompleted, original.Status)
	assert.Equal(t, "tmp-videos/clip.mp4", original.Path)
	assert.Equal(t, int64(1<<20), original.Size)

	// A workflow job is queued for the item.
	jobs := repository.NewJobRepository(db.DB)
	queued, err := jobs.GetByMediaItem(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, models.JobTypeMediaWorkflow, queued[0].Type)
	assert.Equal(t, models.JobStatusPending, queued[0].Status)
}

func TestBuildPlan_Muxed(t *testing.T) {
	info := defaultInfo()
	p, db, template := setupPlannerTest(t, info)
	ctx := context.Background()

	template.Spec.OutputFormat = models.OutputFormatMP4
	template.Spec.Variants = []models.VariantSpec{
		{Resolution: 1080, Params: map[string]any{"video_codec": "libx264"}},
	}
	require.NoError(t, repository.NewTemplateRepository(db.DB).Update(ctx, template))

	item, err := p.BuildPlan(ctx, defaultEvent(template.ID))
	require.NoError(t, err)

	streams := repository.NewStreamRepository(db.DB)
	downloads, err := streams.GetByMediaItemAndKind(ctx, item.ID, models.StreamKindDownload)
	require.NoError(t, err)
	require.Len(t, downloads, 1)

	// 1080p requested on a 720p source: clamped, never upscaled.
	assert.Equal(t, float64(720), downloads[0].Params["resolution"])
	assert.Contains(t, downloads[0].Path, "/download/")
	assert.Contains(t, downloads[0].Path, ".mp4")

	t.Run("no variant configured", func(t *testing.T) {
		template.Spec.Variants = nil
		require.NoError(t, repository.NewTemplateRepository(db.DB).Update(ctx, template))

		_, err := p.BuildPlan(ctx, defaultEvent(template.ID))
		assert.ErrorIs(t, err, ErrNoVariantConfigured)
	})
}

func TestBuildPlan_Rejections(t *testing.T) {
	p, _, template := setupPlannerTest(t, defaultInfo())
	ctx := context.Background()

	t.Run("unsupported content type", func(t *testing.T) {
		event := defaultEvent(template.ID)
		event.ContentType = "image/png"
		_, err := p.BuildPlan(ctx, event)
		assert.ErrorIs(t, err, ErrUnsupportedMediaType)
	})

	t.Run("bad user id", func(t *testing.T) {
		event := defaultEvent(template.ID)
		event.UserID = "not-a-uuid"
		_, err := p.BuildPlan(ctx, event)
		assert.ErrorIs(t, err, ErrInvalidMetadata)
	})

	t.Run("template owned by someone else", func(t *testing.T) {
		event := defaultEvent(template.ID)
		event.UserID = "11111111-2222-3333-4444-555555555555"
		_, err := p.BuildPlan(ctx, event)
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})

	t.Run("unknown template", func(t *testing.T) {
		event := defaultEvent(models.NewULID())
		_, err := p.BuildPlan(ctx, event)
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})
}

func TestBuildPlan_ProbeFailure(t *testing.T) {
	info := defaultInfo()
	p, _, template := setupPlannerTest(t, info)
	ctx := context.Background()

	p.prober = &fakeProber{err: ffmpeg.ErrNoVideoTrack}
	_, err := p.BuildPlan(ctx, defaultEvent(template.ID))
	assert.ErrorIs(t, err, ffmpeg.ErrNoVideoTrack)
}
