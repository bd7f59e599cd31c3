package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nukevideo/nukevideo/internal/models"
	"gorm.io/gorm"
)

// nodeRepo implements NodeRepository using GORM.
type nodeRepo struct {
	db *gorm.DB
}

// NewNodeRepository creates a new NodeRepository.
func NewNodeRepository(db *gorm.DB) *nodeRepo {
	return &nodeRepo{db: db}
}

// Create creates a new node.
func (r *nodeRepo) Create(ctx context.Context, node *models.Node) error {
	if err := r.db.WithContext(ctx).Create(node).Error; err != nil {
		return fmt.Errorf("creating node: %w", err)
	}
	return nil
}

// GetByID retrieves a node by ID.
func (r *nodeRepo) GetByID(ctx context.Context, id models.ULID) (*models.Node, error) {
	var node models.Node
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&node).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting node by ID: %w", err)
	}
	return &node, nil
}

// GetByName retrieves a node by its unique name.
func (r *nodeRepo) GetByName(ctx context.Context, name string) (*models.Node, error) {
	var node models.Node
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&node).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting node by name: %w", err)
	}
	return &node, nil
}

// GetAll retrieves all nodes.
func (r *nodeRepo) GetAll(ctx context.Context) ([]*models.Node, error) {
	var nodes []*models.Node
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("getting all nodes: %w", err)
	}
	return nodes, nil
}

// GetActive retrieves all nodes eligible for new work, oldest first.
// The stable ordering keeps assignment deterministic on load ties.
func (r *nodeRepo) GetActive(ctx context.Context) ([]*models.Node, error) {
	var nodes []*models.Node
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("getting active nodes: %w", err)
	}
	return nodes, nil
}

// Update updates an existing node.
func (r *nodeRepo) Update(ctx context.Context, node *models.Node) error {
	if err := r.db.WithContext(ctx).Save(node).Error; err != nil {
		return fmt.Errorf("updating node: %w", err)
	}
	return nil
}

// Heartbeat refreshes last_seen_at and utilisation metrics, reactivating
// the node if it was swept inactive.
func (r *nodeRepo) Heartbeat(ctx context.Context, id models.ULID, metrics models.JSONMap) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Node{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_seen_at": now,
			"metrics":      metrics,
			"active":       true,
		})
	if result.Error != nil {
		return fmt.Errorf("recording node heartbeat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("recording node heartbeat: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// CurrentLoad counts media items with in-flight statuses on the node.
func (r *nodeRepo) CurrentLoad(ctx context.Context, id models.ULID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.MediaItem{}).
		Where("node_id = ? AND status IN ?", id, []models.Status{
			models.StatusPending,
			models.StatusDownloading,
			models.StatusRunning,
			models.StatusUploading,
		}).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting node load: %w", err)
	}
	return count, nil
}

// DeactivateStale marks nodes inactive whose heartbeat is older than cutoff.
// Nodes that never sent a heartbeat are left alone.
func (r *nodeRepo) DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Node{}).
		Where("active = ? AND last_seen_at IS NOT NULL AND last_seen_at < ?", true, cutoff).
		Update("active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("deactivating stale nodes: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Delete deletes a node by ID.
func (r *nodeRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Node{}).Error; err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	return nil
}

// Ensure nodeRepo implements NodeRepository at compile time.
var _ NodeRepository = (*nodeRepo)(nil)
