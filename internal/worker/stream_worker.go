package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nukevideo/nukevideo/internal/catalog"
	"github.com/nukevideo/nukevideo/internal/ffmpeg"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
	"github.com/nukevideo/nukevideo/internal/service/progress"
	"github.com/nukevideo/nukevideo/internal/storage"
)

// ProgressPublisher receives progress events as transcodes advance.
type ProgressPublisher interface {
	Publish(event progress.Event)
}

// StatusRefresher re-aggregates a media item's status from its streams.
type StatusRefresher interface {
	Refresh(ctx context.Context, itemID models.ULID) (models.Status, error)
}

// CommandRunner executes one ffmpeg invocation.
type CommandRunner interface {
	Run(ctx context.Context, args []string, onProgress func(seconds float64)) error
}

// DimensionProber reads output dimensions after a transcode.
type DimensionProber interface {
	ProbeDimensions(ctx context.Context, path string) (width, height int, err error)
}

// StreamWorker transcodes one planned stream at a time: build arguments,
// run ffmpeg while streaming progress to the database, store the artifact,
// and settle the stream's status.
type StreamWorker struct {
	streams  repository.StreamRepository
	store    storage.ObjectStore
	work     *storage.WorkDir
	runner   CommandRunner
	prober   DimensionProber
	catalog  *catalog.Catalog
	progress ProgressPublisher
	status   StatusRefresher
	logger   *slog.Logger
}

// NewStreamWorker creates a StreamWorker.
func NewStreamWorker(
	streams repository.StreamRepository,
	store storage.ObjectStore,
	work *storage.WorkDir,
	runner CommandRunner,
	prober DimensionProber,
	cat *catalog.Catalog,
) *StreamWorker {
	return &StreamWorker{
		streams: streams,
		store:   store,
		work:    work,
		runner:  runner,
		prober:  prober,
		catalog: cat,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (w *StreamWorker) WithLogger(logger *slog.Logger) *StreamWorker {
	w.logger = logger
	return w
}

// WithProgressPublisher sets the publisher for progress events.
func (w *StreamWorker) WithProgressPublisher(pub ProgressPublisher) *StreamWorker {
	w.progress = pub
	return w
}

// WithStatusRefresher sets the aggregator invoked after a stream settles.
func (w *StreamWorker) WithStatusRefresher(status StatusRefresher) *StreamWorker {
	w.status = status
	return w
}

// Process transcodes one video, audio, or download stream from the local
// source file. Failures are recorded on the stream and returned.
func (w *StreamWorker) Process(ctx context.Context, item *models.MediaItem, stream *models.Stream, sourcePath string) error {
	log := w.logger.With(
		slog.String("media_item_id", item.ID.String()),
		slog.String("stream_id", stream.ID.String()),
		slog.String("kind", string(stream.Kind)),
	)

	stream.MarkRunning()
	if err := w.streams.Update(ctx, stream); err != nil {
		return err
	}

	outPath := w.work.FilePath(item.WorkDirName(), filepath.Base(stream.Path))

	var args []string
	if stream.Kind == models.StreamKindDownload {
		args = BuildMuxedArgs(w.catalog, stream, item.OutputFormat, sourcePath, outPath)
	} else {
		args = BuildStreamArgs(w.catalog, stream, sourcePath, outPath)
	}

	// Progress is written only when the percentage changes, the stats line
	// fires several times a second.
	lastPct := -1
	onProgress := func(pos float64) {
		pct := ffmpeg.ProgressPercent(pos, item.Duration)
		if pct == lastPct {
			return
		}
		lastPct = pct
		if err := w.streams.UpdateProgressQuietly(ctx, stream.ID, pct); err != nil {
			log.Warn("progress update failed", slog.String("error", err.Error()))
		}
		if w.progress != nil {
			w.progress.Publish(progress.Event{
				MediaItemID: item.ID,
				StreamID:    stream.ID,
				Percent:     pct,
			})
		}
	}

	if err := w.runner.Run(ctx, args, onProgress); err != nil {
		return w.fail(ctx, stream, fmt.Errorf("transcoding stream: %w", err))
	}

	stream.MarkUploading()
	if err := w.streams.Update(ctx, stream); err != nil {
		return err
	}

	size, err := w.store.PutFile(ctx, stream.Path, outPath, contentTypeFor(stream.Kind, item.OutputFormat))
	if err != nil {
		return w.fail(ctx, stream, fmt.Errorf("storing stream artifact: %w", err))
	}

	if stream.Kind.HasVideo() {
		width, height, err := w.prober.ProbeDimensions(ctx, outPath)
		if err != nil {
			log.Warn("output dimension probe failed", slog.String("error", err.Error()))
		} else {
			stream.Width = width
			stream.Height = height
		}
	}

	stream.MarkCompleted(size)
	if err := w.streams.Update(ctx, stream); err != nil {
		return err
	}

	if err := w.propagateCompletion(ctx, stream); err != nil {
		log.Warn("shared-path propagation failed", slog.String("error", err.Error()))
	}
	w.refreshItem(ctx, stream.MediaItemID)

	log.Info("stream completed", slog.Int64("size", size))
	return nil
}

// refreshItem re-aggregates the parent item's status, so a settled stream
// is visible on the item without waiting for the rest of the batch.
func (w *StreamWorker) refreshItem(ctx context.Context, itemID models.ULID) {
	if w.status == nil {
		return
	}
	if _, err := w.status.Refresh(ctx, itemID); err != nil {
		w.logger.Warn("item status refresh failed",
			slog.String("media_item_id", itemID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// propagateCompletion completes pending sibling streams that share the
// finished stream's artifact path, so one transcode settles all records
// pointing at the same object.
func (w *StreamWorker) propagateCompletion(ctx context.Context, stream *models.Stream) error {
	siblings, err := w.streams.GetByMediaItemAndKind(ctx, stream.MediaItemID, stream.Kind)
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.ID == stream.ID || sibling.Path != stream.Path {
			continue
		}
		if sibling.Status.IsTerminal() {
			continue
		}
		sibling.Width = stream.Width
		sibling.Height = stream.Height
		sibling.MarkCompleted(stream.Size)
		if err := w.streams.Update(ctx, sibling); err != nil {
			return err
		}
	}
	return nil
}

// fail records the failure on the stream and returns the original error.
func (w *StreamWorker) fail(ctx context.Context, stream *models.Stream, cause error) error {
	stream.MarkFailed(cause)
	if err := w.streams.Update(ctx, stream); err != nil {
		w.logger.Error("recording stream failure",
			slog.String("stream_id", stream.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	w.refreshItem(ctx, stream.MediaItemID)
	return cause
}

// contentTypeFor returns the MIME type of a stored stream artifact.
func contentTypeFor(kind models.StreamKind, format models.OutputFormat) string {
	switch kind {
	case models.StreamKindSubtitle:
		return "text/vtt"
	case models.StreamKindDownload:
		if format == models.OutputFormatMKV {
			return "video/x-matroska"
		}
		return "video/mp4"
	default:
		return "video/mp4"
	}
}
