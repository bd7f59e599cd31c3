package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
	"github.com/nukevideo/nukevideo/internal/storage"
)

// MediaService manages media items after planning: rename and cascading
// deletion of an item with everything stored for it.
type MediaService struct {
	items   repository.MediaItemRepository
	streams repository.StreamRepository
	store   storage.ObjectStore
	logger  *slog.Logger
}

// NewMediaService creates a MediaService.
func NewMediaService(
	items repository.MediaItemRepository,
	streams repository.StreamRepository,
	store storage.ObjectStore,
) *MediaService {
	return &MediaService{
		items:   items,
		streams: streams,
		store:   store,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (s *MediaService) WithLogger(logger *slog.Logger) *MediaService {
	s.logger = logger
	return s
}

// Get returns a media item with its streams.
func (s *MediaService) Get(ctx context.Context, id models.ULID) (*models.MediaItem, error) {
	return s.items.GetWithStreams(ctx, id)
}

// List returns all media items owned by a user.
func (s *MediaService) List(ctx context.Context, userID string) ([]*models.MediaItem, error) {
	return s.items.GetByUser(ctx, userID)
}

// Rename changes a media item's display name.
func (s *MediaService) Rename(ctx context.Context, id models.ULID, name string) error {
	if name == "" {
		return models.ErrNameRequired
	}
	return s.items.Rename(ctx, id, name)
}

// Delete removes a media item, its stream records, and every stored
// object belonging to it. The uploaded source is still removed when an
// in-flight item is deleted before cleanup ran.
func (s *MediaService) Delete(ctx context.Context, id models.ULID) error {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("deleting media item: %s not found", id)
	}

	original, err := s.streams.GetOriginal(ctx, id)
	if err != nil {
		return err
	}
	if original != nil {
		if err := s.store.Delete(ctx, original.Path); err != nil {
			s.logger.Warn("deleting uploaded source",
				slog.String("media_item_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	deleted, err := s.store.DeletePrefix(ctx, id.String()+"/")
	if err != nil {
		return fmt.Errorf("deleting stored artifacts: %w", err)
	}

	if err := s.streams.DeleteByMediaItem(ctx, id); err != nil {
		return err
	}
	if err := s.items.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("media item deleted",
		slog.String("media_item_id", id.String()),
		slog.Int("objects", deleted),
	)
	return nil
}
