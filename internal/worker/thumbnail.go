package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nukevideo/nukevideo/internal/models"
)

// thumbnailPosition is how far into the source the poster frame is taken,
// as a fraction of the duration.
const thumbnailPosition = 0.3

// ExtractThumbnail grabs one poster frame from the local source file and
// stores it. Returns the object key of the stored thumbnail.
func (w *StreamWorker) ExtractThumbnail(ctx context.Context, item *models.MediaItem, sourcePath string) (string, error) {
	outPath := w.work.FilePath(item.WorkDirName(), "thumbnail.jpg")

	args := []string{
		"-ss", fmt.Sprintf("%.2f", item.Duration*thumbnailPosition),
		"-i", sourcePath,
		"-vframes", "1",
		"-vf", "scale=1280:-1",
		"-q:v", "2",
		outPath,
	}

	if err := w.runner.Run(ctx, args, nil); err != nil {
		return "", fmt.Errorf("extracting thumbnail: %w", err)
	}

	key := fmt.Sprintf("%s/thumbnail.jpg", item.ID)
	if _, err := w.store.PutFile(ctx, key, outPath, "image/jpeg"); err != nil {
		return "", fmt.Errorf("storing thumbnail: %w", err)
	}

	w.logger.Debug("thumbnail extracted",
		slog.String("media_item_id", item.ID.String()),
		slog.String("key", key),
	)
	return key, nil
}
