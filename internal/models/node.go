package models

import "gorm.io/gorm"

// NodeMetrics is a snapshot of host utilisation reported with a heartbeat.
type NodeMetrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Load1         float64 `json:"load1"`
}

// Node is a transcoding worker registered with the scheduler.
type Node struct {
	BaseModel

	// Name uniquely identifies the node.
	Name string `gorm:"not null;uniqueIndex;size:255" json:"name"`

	// Host is the address the node is reachable at.
	Host string `gorm:"size:255" json:"host,omitempty"`

	// Active marks the node as eligible for new work. Nil means active.
	Active *bool `gorm:"default:true" json:"active"`

	// Capacity is the number of items the node can process concurrently.
	Capacity int `gorm:"default:4" json:"capacity"`

	// LastSeenAt is the timestamp of the most recent heartbeat.
	LastSeenAt *Time `gorm:"index" json:"last_seen_at,omitempty"`

	// Metrics holds the utilisation snapshot from the last heartbeat.
	Metrics JSONMap `gorm:"type:text" json:"metrics,omitempty"`
}

// TableName returns the table name for Node.
func (Node) TableName() string {
	return "nodes"
}

// IsActive returns true when the node accepts new work.
func (n *Node) IsActive() bool {
	return BoolVal(n.Active)
}

// Validate performs basic validation on the node.
func (n *Node) Validate() error {
	if n.Name == "" {
		return ErrNameRequired
	}
	if n.Capacity < 1 {
		return ErrInvalidCapacity
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the node and generates its ULID.
func (n *Node) BeforeCreate(tx *gorm.DB) error {
	if err := n.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return n.Validate()
}
