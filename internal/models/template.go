package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// VariantSpec is one video rendition in a template ladder.
type VariantSpec struct {
	// Resolution is the target frame height in pixels.
	Resolution int `json:"resolution"`
	// Params are catalog parameters applied to this rendition.
	Params map[string]any `json:"params,omitempty"`
}

// AudioSpec describes how audio tracks are transcoded.
type AudioSpec struct {
	// Shared params apply to every audio rendition.
	Shared map[string]any `json:"shared,omitempty"`
	// Channels maps a channel count ("2", "6") to params for tracks with
	// that layout. With exactly one entry it applies to all tracks.
	Channels map[string]map[string]any `json:"channels,omitempty"`
}

// TemplateSpec is the JSON transcoding recipe stored on a template.
type TemplateSpec struct {
	OutputFormat OutputFormat  `json:"output_format"`
	Variants     []VariantSpec `json:"variants,omitempty"`
	Audio        AudioSpec     `json:"audio,omitempty"`
}

// Value implements driver.Valuer for database storage.
func (s TemplateSpec) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling template spec: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for database retrieval.
func (s *TemplateSpec) Scan(value any) error {
	if value == nil {
		*s = TemplateSpec{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for template spec: %T", value)
	}

	if len(data) == 0 {
		*s = TemplateSpec{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// GormDataType returns the GORM data type for TemplateSpec.
func (TemplateSpec) GormDataType() string {
	return "text"
}

// AudioParamsFor resolves the audio params for a track with the given
// channel count. The shared params are merged under the matching channel
// config. A single channel config applies to every track. Returns nil when
// no config matches, which skips the track.
func (s *TemplateSpec) AudioParamsFor(channels int) map[string]any {
	var cfg map[string]any
	if len(s.Audio.Channels) == 1 {
		for _, c := range s.Audio.Channels {
			cfg = c
		}
	} else {
		cfg = s.Audio.Channels[fmt.Sprintf("%d", channels)]
	}
	if cfg == nil {
		return nil
	}

	merged := make(map[string]any, len(s.Audio.Shared)+len(cfg))
	for k, v := range s.Audio.Shared {
		merged[k] = v
	}
	for k, v := range cfg {
		merged[k] = v
	}
	return merged
}

// Template is a user-owned transcoding recipe referenced by upload metadata.
type Template struct {
	BaseModel

	// UserID is the owning user's UUID. Plans only resolve templates
	// belonging to the uploading user.
	UserID string `gorm:"not null;size:36;index" json:"user_id"`

	Name string `gorm:"not null;size:255" json:"name"`

	Spec TemplateSpec `gorm:"type:text" json:"spec"`
}

// TableName returns the table name for Template.
func (Template) TableName() string {
	return "templates"
}

// Validate performs basic validation on the template.
func (t *Template) Validate() error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}
	if t.Name == "" {
		return ErrNameRequired
	}
	if !t.Spec.OutputFormat.Valid() {
		return ErrInvalidOutputFormat
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the template and generates its ULID.
func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if err := t.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return t.Validate()
}
