// Package workflow runs the media processing pipeline: a polling job
// runner acquires queued workflow jobs and an executor walks each media
// item through download, transcode, artifact generation, and cleanup.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nukevideo/nukevideo/internal/config"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
	"github.com/nukevideo/nukevideo/internal/service"
	"github.com/nukevideo/nukevideo/internal/storage"
	"github.com/nukevideo/nukevideo/internal/worker"
)

// StreamProcessor runs ffmpeg work for a media item's streams.
type StreamProcessor interface {
	Process(ctx context.Context, item *models.MediaItem, stream *models.Stream, sourcePath string) error
	ProcessSubtitles(ctx context.Context, item *models.MediaItem, subs []*models.Stream, sourcePath string) error
	ExtractThumbnail(ctx context.Context, item *models.MediaItem, sourcePath string) (string, error)
	GenerateStoryboard(ctx context.Context, item *models.MediaItem, sourcePath string) error
}

var _ StreamProcessor = (*worker.StreamWorker)(nil)

// Executor walks one media item through the full processing chain.
type Executor struct {
	items     repository.MediaItemRepository
	streams   repository.StreamRepository
	store     storage.ObjectStore
	work      *storage.WorkDir
	processor StreamProcessor
	status    *service.StatusService
	cfg       config.WorkflowConfig
	logger    *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(
	items repository.MediaItemRepository,
	streams repository.StreamRepository,
	store storage.ObjectStore,
	work *storage.WorkDir,
	processor StreamProcessor,
	status *service.StatusService,
	cfg config.WorkflowConfig,
) *Executor {
	return &Executor{
		items:     items,
		streams:   streams,
		store:     store,
		work:      work,
		processor: processor,
		status:    status,
		cfg:       cfg,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// Execute runs the workflow for one acquired job. The uploaded source and
// the local work directory are cleaned up whatever the outcome; the media
// item's final status comes from its streams via the status service, or is
// set to failed directly when a non-stream stage breaks.
func (e *Executor) Execute(ctx context.Context, job *models.Job) error {
	item, err := e.items.GetWithStreams(ctx, job.MediaItemID)
	if err != nil {
		return fmt.Errorf("loading media item: %w", err)
	}
	if item == nil {
		return fmt.Errorf("media item %s not found", job.MediaItemID)
	}

	log := e.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("media_item_id", item.ID.String()),
	)

	defer e.cleanup(item, log)

	if err := e.items.UpdateStatus(ctx, item.ID, models.StatusDownloading, ""); err != nil {
		return err
	}

	sourcePath, err := e.download(ctx, item, log)
	if err != nil {
		return e.failItem(ctx, item, fmt.Errorf("downloading source: %w", err))
	}

	if err := e.items.UpdateStatus(ctx, item.ID, models.StatusRunning, ""); err != nil {
		return err
	}

	thumbKey, err := e.processor.ExtractThumbnail(ctx, item, sourcePath)
	if err != nil {
		return e.failItem(ctx, item, err)
	}
	item.ThumbnailPath = thumbKey
	if err := e.items.Update(ctx, item); err != nil {
		return err
	}

	batchOK := e.processStreams(ctx, item, sourcePath, log)

	if batchOK && item.OutputFormat == models.OutputFormatHLS {
		if err := e.processor.GenerateStoryboard(ctx, item, sourcePath); err != nil {
			return e.failItem(ctx, item, err)
		}
	}

	status, err := e.status.Refresh(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("refreshing item status: %w", err)
	}

	log.Info("workflow finished", slog.String("status", string(status)))
	if status == models.StatusFailed {
		return fmt.Errorf("media item %s failed", item.ID)
	}
	return nil
}

// download fetches the uploaded source into the item's work directory,
// retrying transient transfer errors.
func (e *Executor) download(ctx context.Context, item *models.MediaItem, log *slog.Logger) (string, error) {
	if _, err := e.work.ItemDir(item.WorkDirName()); err != nil {
		return "", err
	}

	ext := filepath.Ext(item.SourceKey)
	if ext == "" {
		ext = ".mp4"
	}
	sourcePath := e.work.FilePath(item.WorkDirName(), "source"+ext)

	// A recovered job may find the source left behind by an earlier attempt.
	if info, err := os.Stat(sourcePath); err == nil && info.Size() > 0 {
		log.Debug("source already present", slog.Int64("size", info.Size()))
		return sourcePath, nil
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.TransferRetries; attempt++ {
		if attempt > 0 {
			log.Warn("retrying source download",
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.cfg.TransferBackoff):
			}
		}

		size, err := e.store.DownloadFile(ctx, item.SourceKey, sourcePath)
		if err == nil {
			log.Debug("source downloaded", slog.Int64("size", size))
			return sourcePath, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// processStreams runs the planned streams concurrently, capped at
// ParallelStreams. Subtitle streams are extracted together in a single
// invocation and occupy one slot. Stream failures are recorded on the
// streams themselves; the return value only reports whether the whole
// batch succeeded.
func (e *Executor) processStreams(ctx context.Context, item *models.MediaItem, sourcePath string, log *slog.Logger) bool {
	var pending []*models.Stream
	var subtitles []*models.Stream
	for i := range item.Streams {
		stream := &item.Streams[i]
		if stream.Status.IsTerminal() {
			continue
		}
		switch stream.Kind {
		case models.StreamKindOriginal:
			// Recorded as completed at plan time, nothing to do.
		case models.StreamKindSubtitle:
			subtitles = append(subtitles, stream)
		default:
			pending = append(pending, stream)
		}
	}

	parallel := e.cfg.ParallelStreams
	if parallel < 1 {
		parallel = 1
	}
	sem := make(chan struct{}, parallel)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := true
	fail := func(err error) {
		mu.Lock()
		ok = false
		mu.Unlock()
		log.Warn("stream processing failed", slog.String("error", err.Error()))
	}

	for _, stream := range pending {
		wg.Add(1)
		go func(stream *models.Stream) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := e.processor.Process(ctx, item, stream, sourcePath); err != nil {
				fail(err)
			}
		}(stream)
	}

	if len(subtitles) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := e.processor.ProcessSubtitles(ctx, item, subtitles, sourcePath); err != nil {
				fail(err)
			}
		}()
	}

	wg.Wait()
	return ok
}

// failItem marks the item failed and returns the cause.
func (e *Executor) failItem(ctx context.Context, item *models.MediaItem, cause error) error {
	if err := e.items.UpdateStatus(ctx, item.ID, models.StatusFailed, cause.Error()); err != nil {
		e.logger.Error("recording item failure",
			slog.String("media_item_id", item.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return cause
}

// cleanup removes the uploaded source object, its stream record, and the
// local work directory. It runs whatever the workflow outcome and is best
// effort, uses a fresh context so a cancelled job still gets cleaned up.
func (e *Executor) cleanup(item *models.MediaItem, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	original, err := e.streams.GetOriginal(ctx, item.ID)
	if err != nil {
		log.Warn("cleanup: loading original stream", slog.String("error", err.Error()))
	} else if original != nil {
		if err := e.store.Delete(ctx, original.Path); err != nil {
			log.Warn("cleanup: deleting uploaded source", slog.String("error", err.Error()))
		}
		if err := e.streams.Delete(ctx, original.ID); err != nil {
			log.Warn("cleanup: deleting original stream record", slog.String("error", err.Error()))
		}
	}

	if err := e.work.Remove(item.WorkDirName()); err != nil {
		log.Warn("cleanup: removing work directory", slog.String("error", err.Error()))
	}
}
