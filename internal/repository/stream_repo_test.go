package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupStreamTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Stream{})
	require.NoError(t, err)

	return db
}

func TestStreamRepo_Create(t *testing.T) {
	db := setupStreamTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	stream := &models.Stream{
		MediaItemID: models.NewULID(),
		Kind:        models.StreamKindVideo,
		Name:        "1080p",
		Path:        "01J0/video/01J1.mp4",
		Params:      models.JSONMap{"resolution": float64(1080)},
		SourceIndex: 0,
	}

	err := repo.Create(ctx, stream)
	require.NoError(t, err)
	assert.False(t, stream.ID.IsZero())

	found, err := repo.GetByID(ctx, stream.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.StreamKindVideo, found.Kind)
	assert.Equal(t, models.StatusPending, found.Status)
	assert.Equal(t, float64(1080), found.Params["resolution"])
}

func TestStreamRepo_GetByMediaItemAndKind(t *testing.T) {
	db := setupStreamTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	itemID := models.NewULID()
	for _, kind := range []models.StreamKind{
		models.StreamKindOriginal,
		models.StreamKindVideo,
		models.StreamKindVideo,
		models.StreamKindAudio,
		models.StreamKindSubtitle,
	} {
		require.NoError(t, repo.Create(ctx, &models.Stream{
			MediaItemID: itemID,
			Kind:        kind,
			Path:        itemID.String() + "/" + string(kind),
		}))
	}
	// A stream of another item must not leak in.
	require.NoError(t, repo.Create(ctx, &models.Stream{
		MediaItemID: models.NewULID(),
		Kind:        models.StreamKindVideo,
		Path:        "other",
	}))

	videos, err := repo.GetByMediaItemAndKind(ctx, itemID, models.StreamKindVideo)
	require.NoError(t, err)
	assert.Len(t, videos, 2)

	all, err := repo.GetByMediaItem(ctx, itemID)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	original, err := repo.GetOriginal(ctx, itemID)
	require.NoError(t, err)
	require.NotNil(t, original)
	assert.Equal(t, models.StreamKindOriginal, original.Kind)
}

func TestStreamRepo_UpdateProgressQuietly(t *testing.T) {
	db := setupStreamTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	stream := &models.Stream{
		MediaItemID: models.NewULID(),
		Kind:        models.StreamKindVideo,
		Path:        "x",
	}
	require.NoError(t, repo.Create(ctx, stream))

	before, err := repo.GetByID(ctx, stream.ID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.UpdateProgressQuietly(ctx, stream.ID, 42))

	after, err := repo.GetByID(ctx, stream.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, after.Progress)
	// Quiet updates must not bump updated_at.
	assert.Equal(t, before.UpdatedAt.UnixNano(), after.UpdatedAt.UnixNano())
}

func TestStreamRepo_DeleteByMediaItem(t *testing.T) {
	db := setupStreamTestDB(t)
	repo := NewStreamRepository(db)
	ctx := context.Background()

	itemID := models.NewULID()
	require.NoError(t, repo.Create(ctx, &models.Stream{MediaItemID: itemID, Kind: models.StreamKindVideo, Path: "a"}))
	require.NoError(t, repo.Create(ctx, &models.Stream{MediaItemID: itemID, Kind: models.StreamKindAudio, Path: "b"}))

	keep := &models.Stream{MediaItemID: models.NewULID(), Kind: models.StreamKindVideo, Path: "c"}
	require.NoError(t, repo.Create(ctx, keep))

	require.NoError(t, repo.DeleteByMediaItem(ctx, itemID))

	remaining, err := repo.GetByMediaItem(ctx, itemID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	found, err := repo.GetByID(ctx, keep.ID)
	require.NoError(t, err)
	assert.NotNil(t, found)
}
