package balancer

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

func setupBalancerTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Node{}, &models.MediaItem{})
	require.NoError(t, err)

	return db
}

func addLoad(t *testing.T, db *gorm.DB, nodeID models.ULID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		item := &models.MediaItem{
			UserID:       "7f9c2ba4-e88f-11eb-9a03-0242ac130003",
			TemplateID:   models.NewULID(),
			NodeID:       nodeID,
			Name:         "clip.mp4",
			SourceKey:    "tmp-videos/clip.mp4",
			OutputFormat: models.OutputFormatHLS,
			Status:       models.StatusRunning,
		}
		require.NoError(t, db.Create(item).Error)
	}
}

func TestBalancer_Select(t *testing.T) {
	db := setupBalancerTestDB(t)
	nodes := repository.NewNodeRepository(db)
	b := New(nodes)
	ctx := context.Background()

	t.Run("no nodes", func(t *testing.T) {
		_, err := b.Select(ctx)
		assert.ErrorIs(t, err, ErrNoNodeAvailable)
	})

	a := &models.Node{Name: "node-a", Capacity: 4}
	c := &models.Node{Name: "node-b", Capacity: 4}
	d := &models.Node{Name: "node-c", Capacity: 4}
	require.NoError(t, nodes.Create(ctx, a))
	require.NoError(t, nodes.Create(ctx, c))
	require.NoError(t, nodes.Create(ctx, d))

	addLoad(t, db, a.ID, 3)
	addLoad(t, db, c.ID, 1)
	addLoad(t, db, d.ID, 2)

	t.Run("least loaded wins", func(t *testing.T) {
		picked, err := b.Select(ctx)
		require.NoError(t, err)
		assert.Equal(t, "node-b", picked.Name)
	})

	t.Run("inactive nodes are skipped", func(t *testing.T) {
		require.NoError(t, db.Model(c).Update("active", false).Error)
		picked, err := b.Select(ctx)
		require.NoError(t, err)
		assert.Equal(t, "node-c", picked.Name)
		require.NoError(t, db.Model(c).Update("active", true).Error)
	})

	t.Run("saturated nodes lose to free capacity", func(t *testing.T) {
		small := &models.Node{Name: "node-small", Capacity: 1}
		require.NoError(t, nodes.Create(ctx, small))
		addLoad(t, db, small.ID, 1)

		// node-small has the lowest absolute load tie with node-b, but it
		// is at capacity while node-b is not.
		picked, err := b.Select(ctx)
		require.NoError(t, err)
		assert.Equal(t, "node-b", picked.Name)
	})

	t.Run("all inactive", func(t *testing.T) {
		require.NoError(t, db.Model(&models.Node{}).Where("1 = 1").Update("active", false).Error)
		_, err := b.Select(ctx)
		assert.ErrorIs(t, err, ErrNoNodeAvailable)
	})
}
