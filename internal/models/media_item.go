package models

import "gorm.io/gorm"

// OutputFormat is the target packaging for a media item.
type OutputFormat string

const (
	// OutputFormatHLS produces an adaptive HLS ladder of stream renditions.
	OutputFormatHLS OutputFormat = "hls"
	// OutputFormatMP4 produces a single muxed MP4 download.
	OutputFormatMP4 OutputFormat = "mp4"
	// OutputFormatMKV produces a single muxed Matroska download.
	OutputFormatMKV OutputFormat = "mkv"
)

// Valid returns true if the output format is a known value.
func (f OutputFormat) Valid() bool {
	return f == OutputFormatHLS || f == OutputFormatMP4 || f == OutputFormatMKV
}

// IsMuxed returns true for single-file container outputs.
func (f OutputFormat) IsMuxed() bool {
	return f == OutputFormatMP4 || f == OutputFormatMKV
}

// MediaItem is one uploaded source video and the work planned for it.
type MediaItem struct {
	BaseModel

	// UserID is the owning user's UUID, taken from upload metadata.
	UserID string `gorm:"not null;size:36;index" json:"user_id"`

	// TemplateID references the transcoding template the plan was built from.
	TemplateID ULID      `gorm:"not null;type:varchar(26);index" json:"template_id"`
	Template   *Template `gorm:"foreignKey:TemplateID" json:"template,omitempty"`

	// NodeID is the worker node this item was assigned to at plan time.
	NodeID ULID  `gorm:"type:varchar(26);index" json:"node_id,omitempty"`
	Node   *Node `gorm:"foreignKey:NodeID" json:"node,omitempty"`

	// Name is the display name, usually the uploaded file name.
	Name string `gorm:"not null;size:255" json:"name"`

	// SourceKey is the object key of the uploaded original.
	SourceKey string `gorm:"not null;size:1024" json:"source_key"`

	// ContentType is the source container MIME type from the upload event.
	ContentType string `gorm:"size:100" json:"content_type"`

	// OutputFormat is the target packaging from the template spec.
	OutputFormat OutputFormat `gorm:"not null;size:10" json:"output_format"`

	// Duration is the source duration in seconds, from the probe.
	Duration float64 `json:"duration"`

	// Width and Height are the source video dimensions.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Size is the source object size in bytes.
	Size int64 `json:"size"`

	// ThumbnailPath is the object key of the extracted poster frame.
	ThumbnailPath string `gorm:"size:1024" json:"thumbnail_path,omitempty"`

	Status Status `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// Error holds the failure reason when status is failed.
	Error string `gorm:"size:4096" json:"error,omitempty"`

	Streams []Stream `gorm:"foreignKey:MediaItemID" json:"streams,omitempty"`
}

// TableName returns the table name for MediaItem.
func (MediaItem) TableName() string {
	return "media_items"
}

// IsFinished returns true once the item reached a terminal status.
func (m *MediaItem) IsFinished() bool {
	return m.Status.IsTerminal()
}

// WorkDirName returns the name of the item's transient working directory.
func (m *MediaItem) WorkDirName() string {
	return m.ID.String()
}

// Validate performs basic validation on the media item.
func (m *MediaItem) Validate() error {
	if m.UserID == "" {
		return ErrUserIDRequired
	}
	if m.TemplateID.IsZero() {
		return ErrTemplateIDRequired
	}
	if m.Name == "" {
		return ErrNameRequired
	}
	if !m.OutputFormat.Valid() {
		return ErrInvalidOutputFormat
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the item and generates its ULID.
func (m *MediaItem) BeforeCreate(tx *gorm.DB) error {
	if err := m.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return m.Validate()
}
