package models

import "gorm.io/datatypes"

// Pin marks a point on a plan in percent coordinates.
type Pin struct {
	X     float64 `json:"x" validate:"min=0,max=100"`
	Y     float64 `json:"y" validate:"min=0,max=100"`
	Color string  `json:"color" validate:"required,hex-color"`
	Note  string  `json:"note" validate:"required,min=1,max=500"`
}

type RevisionRequest struct {
	BaseModel
	OrderID  string                   `gorm:"type:uuid;not null;index" json:"orderId"`
	PlanID   string                   `gorm:"type:uuid;not null" json:"planId"`
	ClientID string                   `gorm:"type:uuid;not null" json:"clientId"`
	Pins     datatypes.JSONSlice[Pin] `gorm:"type:jsonb;not null" json:"pins"`
}
