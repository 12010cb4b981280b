package models

import "time"

// Plan is a deliverable file. Purged plans stay as tombstones with an empty FileURL.
type Plan struct {
	BaseModel
	OrderID    string     `gorm:"type:uuid;not null;index" json:"orderId"`
	UploadedBy string     `gorm:"type:uuid;not null" json:"uploadedBy"`
	FileURL    string     `gorm:"column:file_url" json:"fileUrl"`
	FileName   string     `gorm:"not null" json:"fileName"`
	MimeType   string     `json:"mimeType,omitempty"`
	SizeBytes  int64      `json:"sizeBytes"`
	IsActive   bool       `gorm:"default:true;index" json:"isActive"`
	PurgedAt   *time.Time `json:"purgedAt,omitempty"`
}

func (p *Plan) IsPurged() bool {
	return p.PurgedAt != nil
}
