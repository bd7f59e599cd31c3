// Package service provides the application services layered over the
// repositories: status aggregation, media management, node lifecycle, and
// VOD link signing.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
)

// StatusService derives a media item's status from its streams.
type StatusService struct {
	items   repository.MediaItemRepository
	streams repository.StreamRepository
	logger  *slog.Logger
}

// NewStatusService creates a StatusService.
func NewStatusService(items repository.MediaItemRepository, streams repository.StreamRepository) *StatusService {
	return &StatusService{
		items:   items,
		streams: streams,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (s *StatusService) WithLogger(logger *slog.Logger) *StatusService {
	s.logger = logger
	return s
}

// relevantKind reports whether a stream's status feeds the item status.
// Subtitle extraction failures degrade the item, they do not fail it, and
// the original stream is completed from the start.
func relevantKind(kind models.StreamKind) bool {
	switch kind {
	case models.StreamKindVideo, models.StreamKindAudio, models.StreamKindDownload:
		return true
	default:
		return false
	}
}

// Refresh recomputes the item status from its streams and persists the
// result. Any failed relevant stream fails the item; all relevant streams
// completed completes it; anything else leaves the current status
// untouched. Refresh runs after every stream job so the item converges as
// the last stream settles, in any completion order.
func (s *StatusService) Refresh(ctx context.Context, itemID models.ULID) (models.Status, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return "", err
	}
	if item == nil {
		return "", fmt.Errorf("refreshing status: media item %s not found", itemID)
	}

	streams, err := s.streams.GetByMediaItem(ctx, itemID)
	if err != nil {
		return "", err
	}

	var failedReason string
	relevant := 0
	completed := 0
	for _, stream := range streams {
		if !relevantKind(stream.Kind) {
			continue
		}
		relevant++
		switch stream.Status {
		case models.StatusFailed:
			if failedReason == "" {
				failedReason = stream.Error
			}
		case models.StatusCompleted:
			completed++
		}
	}

	switch {
	case failedReason != "":
		if item.Status != models.StatusFailed {
			if err := s.items.UpdateStatus(ctx, itemID, models.StatusFailed, failedReason); err != nil {
				return "", err
			}
			s.logger.Warn("media item failed",
				slog.String("media_item_id", itemID.String()),
				slog.String("reason", failedReason),
			)
		}
		return models.StatusFailed, nil

	case relevant > 0 && completed == relevant:
		if item.Status != models.StatusCompleted {
			if err := s.items.UpdateStatus(ctx, itemID, models.StatusCompleted, ""); err != nil {
				return "", err
			}
			s.logger.Info("media item completed",
				slog.String("media_item_id", itemID.String()),
			)
		}
		return models.StatusCompleted, nil

	default:
		return item.Status, nil
	}
}
