package workflow

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/nukevideo/nukevideo/internal/config"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
	"github.com/nukevideo/nukevideo/internal/service"
	"github.com/nukevideo/nukevideo/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStore) PutFile(_ context.Context, key, path, _ string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	f.objects[key] = data
	return int64(len(data)), nil
}

func (f *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (f *fakeStore) DownloadFile(_ context.Context, key, path string) (int64, error) {
	data, ok := f.objects[key]
	if !ok {
		return 0, errors.New("not found")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (f *fakeStore) Head(_ context.Context, key string) (*storage.ObjectInfo, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return &storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			delete(f.objects, key)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://example.test/" + key, nil
}

var _ storage.ObjectStore = (*fakeStore)(nil)

// fakeProcessor settles streams the way the real worker does, without ffmpeg.
type fakeProcessor struct {
	streams      repository.StreamRepository
	processErr   error
	storyboarded bool
}

func (f *fakeProcessor) Process(ctx context.Context, _ *models.MediaItem, stream *models.Stream, _ string) error {
	if f.processErr != nil {
		stream.MarkFailed(f.processErr)
		if err := f.streams.Update(ctx, stream); err != nil {
			return err
		}
		return f.processErr
	}
	stream.MarkCompleted(42)
	return f.streams.Update(ctx, stream)
}

func (f *fakeProcessor) ProcessSubtitles(ctx context.Context, item *models.MediaItem, subs []*models.Stream, src string) error {
	for _, sub := range subs {
		if err := f.Process(ctx, item, sub, src); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeProcessor) ExtractThumbnail(_ context.Context, item *models.MediaItem, _ string) (string, error) {
	return item.ID.String() + "/thumbnail.jpg", nil
}

func (f *fakeProcessor) GenerateStoryboard(_ context.Context, _ *models.MediaItem, _ string) error {
	f.storyboarded = true
	return nil
}

type executorFixture struct {
	db        *gorm.DB
	executor  *Executor
	items     repository.MediaItemRepository
	streams   repository.StreamRepository
	store     *fakeStore
	processor *fakeProcessor
	work      *storage.WorkDir
	item      *models.MediaItem
	job       *models.Job
}

func setupExecutorTest(t *testing.T) *executorFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.MediaItem{}, &models.Stream{}, &models.Job{}))

	ctx := context.Background()
	items := repository.NewMediaItemRepository(db)
	streams := repository.NewStreamRepository(db)
	store := newFakeStore()
	work, err := storage.NewWorkDir(t.TempDir())
	require.NoError(t, err)

	item := &models.MediaItem{
		BaseModel:    models.BaseModel{ID: models.NewULID()},
		UserID:       "7f9c2ba4-e88f-11eb-9a03-0242ac130003",
		TemplateID:   models.NewULID(),
		Name:         "clip.mp4",
		SourceKey:    "tmp-videos/clip.mp4",
		OutputFormat: models.OutputFormatHLS,
		Duration:     120,
		Width:        1280,
		Height:       720,
		Status:       models.StatusPending,
	}
	require.NoError(t, items.Create(ctx, item))
	store.objects[item.SourceKey] = []byte("source bytes")

	original := &models.Stream{
		MediaItemID: item.ID,
		Kind:        models.StreamKindOriginal,
		Path:        item.SourceKey,
		Status:      models.StatusCompleted,
		Progress:    100,
	}
	video := &models.Stream{
		MediaItemID: item.ID,
		Kind:        models.StreamKindVideo,
		Name:        "480p",
		Path:        item.ID.String() + "/video/a.mp4",
		Status:      models.StatusPending,
	}
	sub := &models.Stream{
		MediaItemID: item.ID,
		Kind:        models.StreamKindSubtitle,
		Path:        item.ID.String() + "/subtitle/b.vtt",
		Status:      models.StatusPending,
	}
	for _, s := range []*models.Stream{original, video, sub} {
		require.NoError(t, streams.Create(ctx, s))
	}

	job := models.NewWorkflowJob(item)
	require.NoError(t, db.Create(job).Error)

	processor := &fakeProcessor{streams: streams}
	status := service.NewStatusService(items, streams)
	cfg := config.WorkflowConfig{
		TransferRetries: 1,
		TransferBackoff: time.Millisecond,
		ParallelStreams: 2,
	}
	executor := NewExecutor(items, streams, store, work, processor, status, cfg)

	return &executorFixture{
		db:        db,
		executor:  executor,
		items:     items,
		streams:   streams,
		store:     store,
		processor: processor,
		work:      work,
		item:      item,
		job:       job,
	}
}

func TestExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("full chain completes the item", func(t *testing.T) {
		f := setupExecutorTest(t)
		require.NoError(t, f.executor.Execute(ctx, f.job))

		item, err := f.items.GetWithStreams(ctx, f.item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, item.Status)
		assert.Equal(t, f.item.ID.String()+"/thumbnail.jpg", item.ThumbnailPath)
		assert.True(t, f.processor.storyboarded)

		// The original stream record and the uploaded source are gone.
		for _, s := range item.Streams {
			assert.NotEqual(t, models.StreamKindOriginal, s.Kind)
			assert.Equal(t, models.StatusCompleted, s.Status)
		}
		assert.NotContains(t, f.store.objects, f.item.SourceKey)
		assert.NoDirExists(t, f.work.FilePath(f.item.WorkDirName(), ""))
	})

	t.Run("stream failure fails the item but still cleans up", func(t *testing.T) {
		f := setupExecutorTest(t)
		f.processor.processErr = errors.New("encoder exploded")

		err := f.executor.Execute(ctx, f.job)
		require.Error(t, err)

		item, err := f.items.GetByID(ctx, f.item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, item.Status)
		assert.Contains(t, item.Error, "encoder exploded")

		assert.False(t, f.processor.storyboarded)
		assert.NotContains(t, f.store.objects, f.item.SourceKey)
	})

	t.Run("missing source fails after retries and cleans up", func(t *testing.T) {
		f := setupExecutorTest(t)
		delete(f.store.objects, f.item.SourceKey)

		err := f.executor.Execute(ctx, f.job)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "downloading source")

		item, err := f.items.GetByID(ctx, f.item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, item.Status)

		orig, err := f.streams.GetOriginal(ctx, f.item.ID)
		require.NoError(t, err)
		assert.Nil(t, orig)
	})

	t.Run("present source is not re-fetched", func(t *testing.T) {
		f := setupExecutorTest(t)

		// Stage the source locally and drop the remote object. A recovered
		// job must reuse the local copy instead of downloading again.
		_, err := f.work.ItemDir(f.item.WorkDirName())
		require.NoError(t, err)
		source := f.work.FilePath(f.item.WorkDirName(), "source.mp4")
		require.NoError(t, os.WriteFile(source, []byte("source bytes"), 0o644))
		delete(f.store.objects, f.item.SourceKey)

		require.NoError(t, f.executor.Execute(ctx, f.job))

		item, err := f.items.GetByID(ctx, f.item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, item.Status)
	})

	t.Run("non-hls item skips the storyboard", func(t *testing.T) {
		f := setupExecutorTest(t)
		f.item.OutputFormat = models.OutputFormatMP4
		require.NoError(t, f.items.Update(ctx, f.item))

		require.NoError(t, f.executor.Execute(ctx, f.job))
		assert.False(t, f.processor.storyboarded)
	})
}
