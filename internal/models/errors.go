package models

import "errors"

// Common validation errors for models.
var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrUserIDRequired indicates a required user ID field is empty.
	ErrUserIDRequired = errors.New("user_id is required")

	// ErrTemplateIDRequired indicates a required template ID field is zero.
	ErrTemplateIDRequired = errors.New("template_id is required")

	// ErrMediaItemIDRequired indicates a required media item ID field is zero.
	ErrMediaItemIDRequired = errors.New("media_item_id is required")

	// ErrInvalidStreamKind indicates an unknown stream kind.
	ErrInvalidStreamKind = errors.New("invalid stream kind")

	// ErrInvalidOutputFormat indicates an unsupported output container format.
	ErrInvalidOutputFormat = errors.New("invalid output format: must be 'hls', 'mp4' or 'mkv'")

	// ErrJobTypeRequired indicates a required job type field is empty.
	ErrJobTypeRequired = errors.New("job type is required")

	// ErrInvalidCapacity indicates a non-positive node capacity.
	ErrInvalidCapacity = errors.New("capacity must be positive")
)
