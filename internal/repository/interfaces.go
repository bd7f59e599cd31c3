// Package repository provides data access layers for nukevideo models.
package repository

import (
	"context"
	"time"

	"github.com/nukevideo/nukevideo/internal/models"
)

// MediaItemRepository defines data access for media items.
type MediaItemRepository interface {
	Create(ctx context.Context, item *models.MediaItem) error
	GetByID(ctx context.Context, id models.ULID) (*models.MediaItem, error)
	GetWithStreams(ctx context.Context, id models.ULID) (*models.MediaItem, error)
	GetByUser(ctx context.Context, userID string) ([]*models.MediaItem, error)
	Update(ctx context.Context, item *models.MediaItem) error
	UpdateStatus(ctx context.Context, id models.ULID, status models.Status, reason string) error
	Rename(ctx context.Context, id models.ULID, name string) error
	Delete(ctx context.Context, id models.ULID) error
}

// StreamRepository defines data access for streams.
type StreamRepository interface {
	Create(ctx context.Context, stream *models.Stream) error
	GetByID(ctx context.Context, id models.ULID) (*models.Stream, error)
	GetByMediaItem(ctx context.Context, mediaItemID models.ULID) ([]*models.Stream, error)
	GetByMediaItemAndKind(ctx context.Context, mediaItemID models.ULID, kind models.StreamKind) ([]*models.Stream, error)
	GetOriginal(ctx context.Context, mediaItemID models.ULID) (*models.Stream, error)
	Update(ctx context.Context, stream *models.Stream) error
	// UpdateProgressQuietly writes the progress column without touching
	// updated_at or firing model hooks.
	UpdateProgressQuietly(ctx context.Context, id models.ULID, progress int) error
	Delete(ctx context.Context, id models.ULID) error
	DeleteByMediaItem(ctx context.Context, mediaItemID models.ULID) error
}

// TemplateRepository defines data access for templates.
type TemplateRepository interface {
	Create(ctx context.Context, template *models.Template) error
	GetByID(ctx context.Context, id models.ULID) (*models.Template, error)
	// GetByIDForUser resolves a template only when owned by the given user.
	GetByIDForUser(ctx context.Context, id models.ULID, userID string) (*models.Template, error)
	GetByUser(ctx context.Context, userID string) ([]*models.Template, error)
	Update(ctx context.Context, template *models.Template) error
	Delete(ctx context.Context, id models.ULID) error
}

// NodeRepository defines data access for worker nodes.
type NodeRepository interface {
	Create(ctx context.Context, node *models.Node) error
	GetByID(ctx context.Context, id models.ULID) (*models.Node, error)
	GetByName(ctx context.Context, name string) (*models.Node, error)
	GetAll(ctx context.Context) ([]*models.Node, error)
	GetActive(ctx context.Context) ([]*models.Node, error)
	Update(ctx context.Context, node *models.Node) error
	// Heartbeat refreshes last_seen_at and utilisation metrics, reactivating
	// the node if it was swept inactive.
	Heartbeat(ctx context.Context, id models.ULID, metrics models.JSONMap) error
	// CurrentLoad counts media items with in-flight statuses on the node.
	CurrentLoad(ctx context.Context, id models.ULID) (int64, error)
	// DeactivateStale marks nodes inactive whose heartbeat is older than cutoff.
	DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error)
	Delete(ctx context.Context, id models.ULID) error
}

// JobRepository defines data access for queued workflow jobs.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	GetByMediaItem(ctx context.Context, mediaItemID models.ULID) ([]*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	// AcquireJob atomically locks the next pending job for the worker.
	// Returns nil when no job is available.
	AcquireJob(ctx context.Context, workerID string) (*models.Job, error)
	// ReleaseJob drops a job's lock and returns it to pending.
	ReleaseJob(ctx context.Context, id models.ULID) error
	// RecoverStale releases running jobs whose lock is older than cutoff.
	RecoverStale(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteFinished prunes completed and failed jobs older than before.
	DeleteFinished(ctx context.Context, before time.Time) (int64, error)
}
