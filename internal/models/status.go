package models

// Status tracks the lifecycle of media items and streams.
type Status string

const (
	// StatusPending indicates work has been planned but not started.
	StatusPending Status = "pending"
	// StatusDownloading indicates the source object is being fetched.
	StatusDownloading Status = "downloading"
	// StatusRunning indicates transcoding is in progress.
	StatusRunning Status = "running"
	// StatusUploading indicates transcoded output is being stored.
	StatusUploading Status = "uploading"
	// StatusCompleted indicates all work finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates work finished with an error.
	StatusFailed Status = "failed"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusRunning, StatusUploading, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive returns true if the status represents in-flight work.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusDownloading || s == StatusRunning || s == StatusUploading
}

// String returns the string form of the status.
func (s Status) String() string {
	return string(s)
}
