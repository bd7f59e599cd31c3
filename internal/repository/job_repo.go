package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nukevideo/nukevideo/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *jobRepo {
	return &jobRepo{db: db}
}

// Create creates a new job.
func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *jobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// GetByMediaItem retrieves jobs for a media item, newest first.
func (r *jobRepo) GetByMediaItem(ctx context.Context, mediaItemID models.ULID) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).
		Where("media_item_id = ?", mediaItemID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting jobs by media item: %w", err)
	}
	return jobs, nil
}

// Update updates an existing job.
func (r *jobRepo) Update(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	return nil
}

// AcquireJob atomically acquires a pending job for execution.
// Uses SELECT FOR UPDATE with SKIP LOCKED for safe concurrent access.
func (r *jobRepo) AcquireJob(ctx context.Context, workerID string) (*models.Job, error) {
	var job models.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.JobStatusPending).
			Where("locked_by IS NULL OR locked_by = ''").
			Order("priority DESC, created_at ASC").
			Limit(1)

		if err := query.First(&job).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return err
			}
			return fmt.Errorf("finding pending job: %w", err)
		}

		job.MarkRunning(workerID)

		if err := tx.Save(&job).Error; err != nil {
			return fmt.Errorf("acquiring job: %w", err)
		}
		return nil
	})

	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	return &job, nil
}

// ReleaseJob releases a job lock and returns the job to pending.
func (r *jobRepo) ReleaseJob(ctx context.Context, id models.ULID) error {
	// UpdateColumns skips hooks, a released job must not fail validation.
	result := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"locked_by": nil,
			"locked_at": nil,
			"status":    models.JobStatusPending,
		})
	if result.Error != nil {
		return fmt.Errorf("releasing job: %w", result.Error)
	}
	return nil
}

// RecoverStale releases running jobs whose lock is older than cutoff.
// Covers workers that died mid-execution without releasing their lock.
func (r *jobRepo) RecoverStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", models.JobStatusRunning, cutoff).
		UpdateColumns(map[string]interface{}{
			"locked_by": nil,
			"locked_at": nil,
			"status":    models.JobStatusPending,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("recovering stale jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteFinished prunes completed and failed jobs older than the given time.
func (r *jobRepo) DeleteFinished(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN (?, ?) AND completed_at < ?",
			models.JobStatusCompleted, models.JobStatusFailed, before).
		Delete(&models.Job{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting finished jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure jobRepo implements JobRepository at compile time.
var _ JobRepository = (*jobRepo)(nil)
