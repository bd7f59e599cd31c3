package service

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupStatusTest(t *testing.T) (*StatusService, *gorm.DB, *models.MediaItem) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.MediaItem{}, &models.Stream{}))

	items := repository.NewMediaItemRepository(db)
	streams := repository.NewStreamRepository(db)

	item := &models.MediaItem{
		UserID:       "7f9c2ba4-e88f-11eb-9a03-0242ac130003",
		TemplateID:   models.NewULID(),
		Name:         "clip.mp4",
		SourceKey:    "tmp-videos/clip.mp4",
		OutputFormat: models.OutputFormatHLS,
		Status:       models.StatusRunning,
	}
	require.NoError(t, items.Create(context.Background(), item))

	return NewStatusService(items, streams), db, item
}

func addStream(t *testing.T, db *gorm.DB, itemID models.ULID, status models.Status, errMsg string) *models.Stream {
	t.Helper()
	return addKindStream(t, db, itemID, models.StreamKindVideo, status, errMsg)
}

func addKindStream(t *testing.T, db *gorm.DB, itemID models.ULID, kind models.StreamKind, status models.Status, errMsg string) *models.Stream {
	t.Helper()
	s := &models.Stream{
		MediaItemID: itemID,
		Kind:        kind,
		Path:        "p",
		Status:      status,
		Error:       errMsg,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

func TestStatusService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("in-flight streams leave status untouched", func(t *testing.T) {
		svc, db, item := setupStatusTest(t)
		addStream(t, db, item.ID, models.StatusCompleted, "")
		addStream(t, db, item.ID, models.StatusRunning, "")

		status, err := svc.Refresh(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRunning, status)
	})

	t.Run("all completed completes the item", func(t *testing.T) {
		svc, db, item := setupStatusTest(t)
		addStream(t, db, item.ID, models.StatusCompleted, "")
		addStream(t, db, item.ID, models.StatusCompleted, "")

		status, err := svc.Refresh(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, status)
	})

	t.Run("any failure fails the item with the reason", func(t *testing.T) {
		svc, db, item := setupStatusTest(t)
		addStream(t, db, item.ID, models.StatusCompleted, "")
		addStream(t, db, item.ID, models.StatusFailed, "encoder exploded")
		addStream(t, db, item.ID, models.StatusRunning, "")

		status, err := svc.Refresh(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, status)

		var found models.MediaItem
		require.NoError(t, db.First(&found, "id = ?", item.ID).Error)
		assert.Equal(t, models.StatusFailed, found.Status)
		assert.Equal(t, "encoder exploded", found.Error)
	})

	t.Run("converges regardless of completion order", func(t *testing.T) {
		svc, db, item := setupStatusTest(t)
		a := addStream(t, db, item.ID, models.StatusRunning, "")
		b := addStream(t, db, item.ID, models.StatusRunning, "")

		status, err := svc.Refresh(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRunning, status)

		require.NoError(t, db.Model(b).Update("status", models.StatusCompleted).Error)
		status, err = svc.Refresh(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRunning, status)

		require.NoError(t, db.Model(a).Update("status", models.StatusCompleted).Error)
		status, err = svc.Refresh(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, status)
	})

	t.Run("subtitle failure does not fail the item", func(t *testing.T) {
		svc, db, item := setupStatusTest(t)
		addStream(t, db, item.ID, models.StatusCompleted, "")
		addKindStream(t, db, item.ID, models.StreamKindAudio, models.StatusCompleted, "")
		addKindStream(t, db, item.ID, models.StreamKindSubtitle, models.StatusFailed, "no decoder")

		status, err := svc.Refresh(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, status)
	})

	t.Run("original stream never blocks completion", func(t *testing.T) {
		svc, db, item := setupStatusTest(t)
		addKindStream(t, db, item.ID, models.StreamKindOriginal, models.StatusCompleted, "")
		addKindStream(t, db, item.ID, models.StreamKindDownload, models.StatusCompleted, "")

		status, err := svc.Refresh(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, status)
	})

	t.Run("unknown item", func(t *testing.T) {
		svc, _, _ := setupStatusTest(t)
		_, err := svc.Refresh(ctx, models.NewULID())
		assert.Error(t, err)
	})
}
