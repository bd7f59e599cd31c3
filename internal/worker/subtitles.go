package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nukevideo/nukevideo/internal/models"
)

// ProcessSubtitles extracts all subtitle streams of an item in a single
// ffmpeg invocation, each track mapped to its own WebVTT output. A failure
// marks every subtitle stream failed; other stream kinds are unaffected.
func (w *StreamWorker) ProcessSubtitles(ctx context.Context, item *models.MediaItem, subs []*models.Stream, sourcePath string) error {
	if len(subs) == 0 {
		return nil
	}

	log := w.logger.With(
		slog.String("media_item_id", item.ID.String()),
		slog.Int("subtitles", len(subs)),
	)

	for _, sub := range subs {
		sub.MarkRunning()
		if err := w.streams.Update(ctx, sub); err != nil {
			return err
		}
	}

	args := []string{"-i", sourcePath}
	outPaths := make([]string, len(subs))
	for i, sub := range subs {
		outPaths[i] = w.work.FilePath(item.WorkDirName(), filepath.Base(sub.Path))
		args = append(args,
			"-map", fmt.Sprintf("0:%d", sub.SourceIndex),
			"-c:s", "webvtt",
			outPaths[i],
		)
	}

	if err := w.runner.Run(ctx, args, nil); err != nil {
		cause := fmt.Errorf("extracting subtitles: %w", err)
		for _, sub := range subs {
			sub.MarkFailed(cause)
			if uerr := w.streams.Update(ctx, sub); uerr != nil {
				log.Error("recording subtitle failure", slog.String("error", uerr.Error()))
			}
		}
		w.refreshItem(ctx, item.ID)
		return cause
	}

	for i, sub := range subs {
		sub.MarkUploading()
		if err := w.streams.Update(ctx, sub); err != nil {
			return err
		}

		size, err := w.store.PutFile(ctx, sub.Path, outPaths[i], "text/vtt")
		if err != nil {
			return w.fail(ctx, sub, fmt.Errorf("storing subtitle: %w", err))
		}

		sub.MarkCompleted(size)
		if err := w.streams.Update(ctx, sub); err != nil {
			return err
		}
	}

	w.refreshItem(ctx, item.ID)

	log.Info("subtitles extracted")
	return nil
}
