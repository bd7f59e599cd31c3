package models

import "gorm.io/gorm"

// JobType represents the type of job to execute.
type JobType string

const (
	// JobTypeMediaWorkflow runs the full transcode chain for one media item.
	JobTypeMediaWorkflow JobType = "media_workflow"
)

// JobStatus represents the current status of a queued job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be executed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// Job is a queued task execution record, acquired by workers under a lock.
type Job struct {
	BaseModel

	// Type indicates what kind of job this is.
	Type JobType `gorm:"not null;size:50;index" json:"type"`

	// MediaItemID is the media item this job operates on.
	MediaItemID ULID `gorm:"not null;type:varchar(26);index" json:"media_item_id"`

	// Status indicates the current status of the job.
	Status JobStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// Priority determines execution order (higher = more important).
	Priority int `gorm:"default:0;index" json:"priority"`

	// StartedAt is the timestamp when the job started executing.
	StartedAt *Time `json:"started_at,omitempty"`

	// CompletedAt is the timestamp when the job finished, in either outcome.
	CompletedAt *Time `json:"completed_at,omitempty"`

	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// AttemptCount is the number of times this job has been attempted.
	AttemptCount int `gorm:"default:0" json:"attempt_count"`

	// LastError contains the error message from the last failed attempt.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`

	// LockedBy is the worker ID that has locked this job for execution.
	LockedBy string `gorm:"size:100;index" json:"locked_by,omitempty"`

	// LockedAt is the timestamp when the job was locked. Locks older than
	// the configured lock timeout are considered stale and recovered.
	LockedAt *Time `json:"locked_at,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsFinished returns true if the job has completed, successfully or not.
func (j *Job) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// MarkRunning marks the job as running under the given worker's lock.
func (j *Job) MarkRunning(workerID string) {
	j.Status = JobStatusRunning
	now := Now()
	j.StartedAt = &now
	j.LockedBy = workerID
	j.LockedAt = &now
	j.AttemptCount++
	j.LastError = ""
}

// MarkCompleted marks the job as completed successfully.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	now := Now()
	j.CompletedAt = &now
	j.LastError = ""

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}

	j.LockedBy = ""
	j.LockedAt = nil
}

// MarkFailed marks the job as failed with an error message.
func (j *Job) MarkFailed(err error) {
	j.Status = JobStatusFailed
	now := Now()
	j.CompletedAt = &now

	if err != nil {
		j.LastError = err.Error()
	}

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}

	j.LockedBy = ""
	j.LockedAt = nil
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if j.Type == "" {
		return ErrJobTypeRequired
	}
	if j.MediaItemID.IsZero() {
		return ErrMediaItemIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates its ULID.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// NewWorkflowJob creates a queued workflow job for a media item.
func NewWorkflowJob(item *MediaItem) *Job {
	return &Job{
		Type:        JobTypeMediaWorkflow,
		MediaItemID: item.ID,
	}
}
