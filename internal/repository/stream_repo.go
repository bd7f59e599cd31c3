package repository

import (
	"context"
	"fmt"

	"github.com/nukevideo/nukevideo/internal/models"
	"gorm.io/gorm"
)

// streamRepo implements StreamRepository using GORM.
type streamRepo struct {
	db *gorm.DB
}

// NewStreamRepository creates a new StreamRepository.
func NewStreamRepository(db *gorm.DB) *streamRepo {
	return &streamRepo{db: db}
}

// Create creates a new stream.
func (r *streamRepo) Create(ctx context.Context, stream *models.Stream) error {
	if err := r.db.WithContext(ctx).Create(stream).Error; err != nil {
		return fmt.Errorf("creating stream: %w", err)
	}
	return nil
}

// GetByID retrieves a stream by ID.
func (r *streamRepo) GetByID(ctx context.Context, id models.ULID) (*models.Stream, error) {
	var stream models.Stream
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&stream).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stream by ID: %w", err)
	}
	return &stream, nil
}

// GetByMediaItem retrieves all streams belonging to a media item.
func (r *streamRepo) GetByMediaItem(ctx context.Context, mediaItemID models.ULID) ([]*models.Stream, error) {
	var streams []*models.Stream
	if err := r.db.WithContext(ctx).
		Where("media_item_id = ?", mediaItemID).
		Order("created_at ASC").
		Find(&streams).Error; err != nil {
		return nil, fmt.Errorf("getting streams by media item: %w", err)
	}
	return streams, nil
}

// GetByMediaItemAndKind retrieves a media item's streams of one kind.
func (r *streamRepo) GetByMediaItemAndKind(ctx context.Context, mediaItemID models.ULID, kind models.StreamKind) ([]*models.Stream, error) {
	var streams []*models.Stream
	if err := r.db.WithContext(ctx).
		Where("media_item_id = ? AND kind = ?", mediaItemID, kind).
		Order("created_at ASC").
		Find(&streams).Error; err != nil {
		return nil, fmt.Errorf("getting streams by media item and kind: %w", err)
	}
	return streams, nil
}

// GetOriginal retrieves the original source stream of a media item.
func (r *streamRepo) GetOriginal(ctx context.Context, mediaItemID models.ULID) (*models.Stream, error) {
	var stream models.Stream
	if err := r.db.WithContext(ctx).
		Where("media_item_id = ? AND kind = ?", mediaItemID, models.StreamKindOriginal).
		First(&stream).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting original stream: %w", err)
	}
	return &stream, nil
}

// Update updates an existing stream.
func (r *streamRepo) Update(ctx context.Context, stream *models.Stream) error {
	if err := r.db.WithContext(ctx).Save(stream).Error; err != nil {
		return fmt.Errorf("updating stream: %w", err)
	}
	return nil
}

// UpdateProgressQuietly writes the progress column without touching
// updated_at or firing model hooks. Progress writes happen once per percent
// of transcode output, so they must stay cheap.
func (r *streamRepo) UpdateProgressQuietly(ctx context.Context, id models.ULID, progress int) error {
	result := r.db.WithContext(ctx).Model(&models.Stream{}).
		Where("id = ?", id).
		UpdateColumn("progress", progress)
	if result.Error != nil {
		return fmt.Errorf("updating stream progress: %w", result.Error)
	}
	return nil
}

// Delete deletes a stream by ID.
func (r *streamRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Stream{}).Error; err != nil {
		return fmt.Errorf("deleting stream: %w", err)
	}
	return nil
}

// DeleteByMediaItem deletes all streams belonging to a media item.
func (r *streamRepo) DeleteByMediaItem(ctx context.Context, mediaItemID models.ULID) error {
	if err := r.db.WithContext(ctx).
		Where("media_item_id = ?", mediaItemID).
		Delete(&models.Stream{}).Error; err != nil {
		return fmt.Errorf("deleting streams by media item: %w", err)
	}
	return nil
}

// Ensure streamRepo implements StreamRepository at compile time.
var _ StreamRepository = (*streamRepo)(nil)
