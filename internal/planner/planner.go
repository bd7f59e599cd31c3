// Package planner builds the transcoding plan for uploaded source videos:
// one media item, its output streams, and the queued workflow job.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nukevideo/nukevideo/internal/balancer"
	"github.com/nukevideo/nukevideo/internal/config"
	"github.com/nukevideo/nukevideo/internal/database"
	"github.com/nukevideo/nukevideo/internal/ffmpeg"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
	"gorm.io/gorm"
)

// Planning errors.
var (
	// ErrUnsupportedMediaType indicates the upload's content type is not
	// in the allow-list.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrInvalidMetadata indicates the upload carries no usable user or
	// template metadata.
	ErrInvalidMetadata = errors.New("invalid upload metadata")
	// ErrTemplateNotFound indicates the referenced template does not exist
	// or is not owned by the uploading user.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrNoVariantConfigured indicates a muxed template without variants.
	ErrNoVariantConfigured = errors.New("template has no variant configured")
)

// UploadEvent describes one finished source upload.
type UploadEvent struct {
	// Key is the object key of the uploaded original.
	Key string
	// Size is the object size in bytes.
	Size int64
	// ContentType is the source container MIME type.
	ContentType string
	// UserID is the uploading user's UUID from object metadata.
	UserID string
	// TemplateID is the template ULID from object metadata.
	TemplateID string
	// Name is the display name from object metadata, optional.
	Name string
}

// MediaProber probes a source for planning.
type MediaProber interface {
	ProbeMedia(ctx context.Context, url string) (*ffmpeg.MediaInfo, error)
}

// Presigner hands out time-limited source URLs for probing.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Planner builds and persists transcoding plans.
type Planner struct {
	db        *database.DB
	templates repository.TemplateRepository
	balancer  *balancer.Balancer
	prober    MediaProber
	presigner Presigner
	cfg       config.IngestionConfig
	probeTTL  time.Duration
	logger    *slog.Logger
}

// New creates a Planner.
func New(
	db *database.DB,
	templates repository.TemplateRepository,
	b *balancer.Balancer,
	prober MediaProber,
	presigner Presigner,
	cfg config.IngestionConfig,
) *Planner {
	return &Planner{
		db:        db,
		templates: templates,
		balancer:  b,
		prober:    prober,
		presigner: presigner,
		cfg:       cfg,
		probeTTL:  24 * time.Hour,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger.
func (p *Planner) WithLogger(logger *slog.Logger) *Planner {
	p.logger = logger
	return p
}

// WithProbeTTL sets the lifetime of presigned probe URLs.
func (p *Planner) WithProbeTTL(ttl time.Duration) *Planner {
	p.probeTTL = ttl
	return p
}

// BuildPlan validates the upload, probes the source, assigns a node, and
// persists the media item with its planned streams and workflow job in one
// transaction. The caller dispatches execution after commit.
func (p *Planner) BuildPlan(ctx context.Context, event UploadEvent) (*models.MediaItem, error) {
	if !p.contentTypeAllowed(event.ContentType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, event.ContentType)
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing user id: %v", ErrInvalidMetadata, err)
	}
	templateID, err := models.ParseULID(event.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing template id: %v", ErrInvalidMetadata, err)
	}

	template, err := p.templates.GetByIDForUser(ctx, templateID, userID.String())
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, ErrTemplateNotFound
	}

	url, err := p.presigner.PresignGet(ctx, event.Key, p.probeTTL)
	if err != nil {
		return nil, fmt.Errorf("presigning source for probe: %w", err)
	}
	info, err := p.prober.ProbeMedia(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("probing source: %w", err)
	}

	node, err := p.balancer.Select(ctx)
	if err != nil {
		return nil, err
	}

	name := event.Name
	if name == "" {
		name = path.Base(event.Key)
	}

	item := &models.MediaItem{
		BaseModel:    models.BaseModel{ID: models.NewULID()},
		UserID:       userID.String(),
		TemplateID:   template.ID,
		NodeID:       node.ID,
		Name:         name,
		SourceKey:    event.Key,
		ContentType:  event.ContentType,
		OutputFormat: template.Spec.OutputFormat,
		Duration:     info.Duration,
		Width:        info.Width,
		Height:       info.Height,
		Size:         event.Size,
		Status:       models.StatusPending,
	}

	streams, err := p.planStreams(item, template, info)
	if err != nil {
		return nil, err
	}
	streams = append(streams, p.originalStream(item, event))

	job := models.NewWorkflowJob(item)

	err = p.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("creating media item: %w", err)
		}
		for _, stream := range streams {
			if err := tx.Create(stream).Error; err != nil {
				return fmt.Errorf("creating stream: %w", err)
			}
		}
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("creating workflow job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("transcoding plan created",
		slog.String("media_item_id", item.ID.String()),
		slog.String("node", node.Name),
		slog.String("output_format", string(item.OutputFormat)),
		slog.Int("streams", len(streams)),
	)

	item.Streams = make([]models.Stream, 0, len(streams))
	for _, s := range streams {
		item.Streams = append(item.Streams, *s)
	}
	return item, nil
}

// contentTypeAllowed checks the source container allow-list.
func (p *Planner) contentTypeAllowed(contentType string) bool {
	for _, allowed := range p.cfg.AllowedContentTypes {
		if allowed == contentType {
			return true
		}
	}
	return false
}

// planStreams builds the output stream records for the template and source.
func (p *Planner) planStreams(item *models.MediaItem, template *models.Template, info *ffmpeg.MediaInfo) ([]*models.Stream, error) {
	if template.Spec.OutputFormat.IsMuxed() {
		return p.planMuxed(item, template, info)
	}
	return p.planLadder(item, template, info)
}

// planMuxed plans the single download stream of an MP4 or MKV output.
// The first variant drives quality, its resolution clamped to the source.
func (p *Planner) planMuxed(item *models.MediaItem, template *models.Template, info *ffmpeg.MediaInfo) ([]*models.Stream, error) {
	if len(template.Spec.Variants) == 0 {
		return nil, ErrNoVariantConfigured
	}
	variant := template.Spec.Variants[0]

	resolution := variant.Resolution
	if info.Height > 0 && resolution > info.Height {
		resolution = info.Height
	}

	video := info.VideoTracks[0]
	stream := &models.Stream{
		BaseModel:   models.BaseModel{ID: models.NewULID()},
		MediaItemID: item.ID,
		Kind:        models.StreamKindDownload,
		Name:        video.Name(),
		Params:      variantParams(variant, resolution),
		SourceIndex: video.Index,
	}
	stream.Path = fmt.Sprintf("%s/download/%s.%s", item.ID, stream.ID, template.Spec.OutputFormat)

	return []*models.Stream{stream}, nil
}

// planLadder plans the HLS rendition set: one video stream per variant the
// source is tall enough for, one audio stream per matched track, and one
// subtitle stream per subtitle track.
func (p *Planner) planLadder(item *models.MediaItem, template *models.Template, info *ffmpeg.MediaInfo) ([]*models.Stream, error) {
	var streams []*models.Stream
	video := info.VideoTracks[0]

	for _, variant := range template.Spec.Variants {
		// Never upscale. Variants above the source height are dropped.
		if info.Height < variant.Resolution {
			continue
		}

		stream := &models.Stream{
			BaseModel:   models.BaseModel{ID: models.NewULID()},
			MediaItemID: item.ID,
			Kind:        models.StreamKindVideo,
			Name:        strconv.Itoa(variant.Resolution) + "p",
			Params:      variantParams(variant, variant.Resolution),
			SourceIndex: video.Index,
		}
		stream.Path = streamPath(item.ID, stream)
		streams = append(streams, stream)
	}

	for _, track := range info.AudioTracks {
		params := template.Spec.AudioParamsFor(track.Channels)
		if params == nil {
			// No config for this channel layout, the track is skipped.
			continue
		}

		stream := &models.Stream{
			BaseModel:   models.BaseModel{ID: models.NewULID()},
			MediaItemID: item.ID,
			Kind:        models.StreamKindAudio,
			Name:        track.Name(),
			Language:    track.Language,
			Channels:    track.Channels,
			Params:      params,
			SourceIndex: track.Index,
		}
		stream.Path = streamPath(item.ID, stream)
		streams = append(streams, stream)
	}

	for _, track := range info.SubtitleTracks {
		stream := &models.Stream{
			BaseModel:   models.BaseModel{ID: models.NewULID()},
			MediaItemID: item.ID,
			Kind:        models.StreamKindSubtitle,
			Name:        track.Name(),
			Language:    track.Language,
			SourceIndex: track.Index,
		}
		stream.Path = streamPath(item.ID, stream)
		streams = append(streams, stream)
	}

	return streams, nil
}

// originalStream records the uploaded source as a completed stream so the
// workflow can locate and later clean it up.
func (p *Planner) originalStream(item *models.MediaItem, event UploadEvent) *models.Stream {
	now := models.Now()
	return &models.Stream{
		BaseModel:   models.BaseModel{ID: models.NewULID()},
		MediaItemID: item.ID,
		Kind:        models.StreamKindOriginal,
		Name:        item.Name,
		Path:        event.Key,
		Size:        event.Size,
		Progress:    100,
		Status:      models.StatusCompleted,
		StartedAt:   &now,
		CompletedAt: &now,
	}
}

// variantParams copies a variant's params with the effective resolution set.
func variantParams(variant models.VariantSpec, resolution int) models.JSONMap {
	params := make(models.JSONMap, len(variant.Params)+1)
	for k, v := range variant.Params {
		params[k] = v
	}
	params["resolution"] = resolution
	return params
}

// streamPath builds the object key for a planned stream artifact.
func streamPath(itemID models.ULID, stream *models.Stream) string {
	ext := "mp4"
	if stream.Kind == models.StreamKindSubtitle {
		ext = "vtt"
	}
	return fmt.Sprintf("%s/%s/%s.%s", itemID, stream.Kind, stream.ID, ext)
}
