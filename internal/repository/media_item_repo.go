package repository

import (
	"context"
	"fmt"

	"github.com/nukevideo/nukevideo/internal/models"
	"gorm.io/gorm"
)

// mediaItemRepo implements MediaItemRepository using GORM.
type mediaItemRepo struct {
	db *gorm.DB
}

// NewMediaItemRepository creates a new MediaItemRepository.
func NewMediaItemRepository(db *gorm.DB) *mediaItemRepo {
	return &mediaItemRepo{db: db}
}

// Create creates a new media item.
func (r *mediaItemRepo) Create(ctx context.Context, item *models.MediaItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("creating media item: %w", err)
	}
	return nil
}

// GetByID retrieves a media item by ID.
func (r *mediaItemRepo) GetByID(ctx context.Context, id models.ULID) (*models.MediaItem, error) {
	var item models.MediaItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting media item by ID: %w", err)
	}
	return &item, nil
}

// GetWithStreams retrieves a media item with its streams and template preloaded.
func (r *mediaItemRepo) GetWithStreams(ctx context.Context, id models.ULID) (*models.MediaItem, error) {
	var item models.MediaItem
	if err := r.db.WithContext(ctx).
		Preload("Streams").
		Preload("Template").
		Where("id = ?", id).
		First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting media item with streams: %w", err)
	}
	return &item, nil
}

// GetByUser retrieves all media items owned by a user.
func (r *mediaItemRepo) GetByUser(ctx context.Context, userID string) ([]*models.MediaItem, error) {
	var items []*models.MediaItem
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("getting media items by user: %w", err)
	}
	return items, nil
}

// Update updates an existing media item.
func (r *mediaItemRepo) Update(ctx context.Context, item *models.MediaItem) error {
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		return fmt.Errorf("updating media item: %w", err)
	}
	return nil
}

// UpdateStatus sets the item status and failure reason in one write.
func (r *mediaItemRepo) UpdateStatus(ctx context.Context, id models.ULID, status models.Status, reason string) error {
	result := r.db.WithContext(ctx).Model(&models.MediaItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status": status,
			"error":  reason,
		})
	if result.Error != nil {
		return fmt.Errorf("updating media item status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("updating media item status: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// Rename updates the display name only.
func (r *mediaItemRepo) Rename(ctx context.Context, id models.ULID, name string) error {
	result := r.db.WithContext(ctx).Model(&models.MediaItem{}).
		Where("id = ?", id).
		Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("renaming media item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("renaming media item: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// Delete deletes a media item by ID.
func (r *mediaItemRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.MediaItem{}).Error; err != nil {
		return fmt.Errorf("deleting media item: %w", err)
	}
	return nil
}

// Ensure mediaItemRepo implements MediaItemRepository at compile time.
var _ MediaItemRepository = (*mediaItemRepo)(nil)
