package models

import (
	"time"

	"gorm.io/datatypes"
)

type Notification struct {
	BaseModel
	UserID  string         `gorm:"type:uuid;not null;index" json:"userId"`
	OrderID *string        `gorm:"type:uuid;index" json:"orderId,omitempty"`
	Type    string         `gorm:"not null" json:"type"` // "archive_warning", "files_purged", "revision_requested", ...
	Title   string         `gorm:"not null" json:"title"`
	Message string         `json:"message"`
	Data    datatypes.JSON `gorm:"type:jsonb" json:"data,omitempty"`
	IsRead  bool           `gorm:"default:false" json:"isRead"`
	ReadAt  *time.Time     `json:"readAt,omitempty"`
}
