package models

import "gorm.io/gorm"

// StreamKind classifies the output artifact a stream record describes.
type StreamKind string

const (
	// StreamKindOriginal is the uploaded source object, kept until cleanup.
	StreamKindOriginal StreamKind = "original"
	// StreamKindVideo is one video rendition of an HLS ladder.
	StreamKindVideo StreamKind = "video"
	// StreamKindAudio is one audio rendition of an HLS ladder.
	StreamKindAudio StreamKind = "audio"
	// StreamKindSubtitle is one extracted WebVTT subtitle track.
	StreamKindSubtitle StreamKind = "subtitle"
	// StreamKindDownload is a single muxed output file.
	StreamKindDownload StreamKind = "download"
)

// Valid returns true if the kind is a known value.
func (k StreamKind) Valid() bool {
	switch k {
	case StreamKindOriginal, StreamKindVideo, StreamKindAudio, StreamKindSubtitle, StreamKindDownload:
		return true
	}
	return false
}

// HasVideo returns true for kinds whose output carries a video track.
func (k StreamKind) HasVideo() bool {
	return k == StreamKindVideo || k == StreamKindDownload
}

// Stream is one planned output artifact of a media item.
type Stream struct {
	BaseModel

	MediaItemID ULID       `gorm:"not null;type:varchar(26);index" json:"media_item_id"`
	MediaItem   *MediaItem `gorm:"foreignKey:MediaItemID" json:"-"`

	// ParentID links derived artifacts back to the stream they came from.
	ParentID *ULID   `gorm:"type:varchar(26);index" json:"parent_id,omitempty"`
	Parent   *Stream `gorm:"foreignKey:ParentID" json:"-"`

	Kind StreamKind `gorm:"not null;size:20;index" json:"kind"`

	// Name is the track label, from the source title tag or language tag.
	Name string `gorm:"size:255" json:"name,omitempty"`

	// Language is the source track's language tag, when present.
	Language string `gorm:"size:20" json:"language,omitempty"`

	// Channels is the source audio track's channel count.
	Channels int `json:"channels,omitempty"`

	// Path is the object key the artifact is stored under.
	Path string `gorm:"not null;size:1024" json:"path"`

	// Params holds the transcode parameters resolved from the template.
	// Keys must exist in the parameter catalog for this stream's kind.
	Params JSONMap `gorm:"type:text" json:"params,omitempty"`

	// SourceIndex is the track index within the source container.
	SourceIndex int `json:"source_index"`

	// Width and Height are the output dimensions, probed after transcode.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Size is the stored artifact size in bytes.
	Size int64 `json:"size"`

	// Progress is the transcode completion percentage, 0 to 100.
	Progress int `gorm:"default:0" json:"progress"`

	Status Status `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// Error holds the failure reason when status is failed.
	Error string `gorm:"size:4096" json:"error,omitempty"`

	StartedAt   *Time `json:"started_at,omitempty"`
	CompletedAt *Time `json:"completed_at,omitempty"`
}

// TableName returns the table name for Stream.
func (Stream) TableName() string {
	return "streams"
}

// MarkRunning records the transcode start.
func (s *Stream) MarkRunning() {
	s.Status = StatusRunning
	now := Now()
	s.StartedAt = &now
	s.Error = ""
}

// MarkUploading records that transcoding finished and storage began.
func (s *Stream) MarkUploading() {
	s.Status = StatusUploading
}

// MarkCompleted records successful storage of the artifact.
func (s *Stream) MarkCompleted(size int64) {
	s.Status = StatusCompleted
	now := Now()
	s.CompletedAt = &now
	s.Size = size
	s.Progress = 100
	s.Error = ""
}

// MarkFailed records a failure with its reason.
func (s *Stream) MarkFailed(err error) {
	s.Status = StatusFailed
	now := Now()
	s.CompletedAt = &now
	if err != nil {
		s.Error = err.Error()
	}
}

// Validate performs basic validation on the stream.
func (s *Stream) Validate() error {
	if s.MediaItemID.IsZero() {
		return ErrMediaItemIDRequired
	}
	if !s.Kind.Valid() {
		return ErrInvalidStreamKind
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the stream and generates its ULID.
func (s *Stream) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return s.Validate()
}
