package models

import "time"

// Patient is the identity record a visit points at. Created at registration
// and never deleted in normal flow.
type Patient struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	GuardianName string    `gorm:"size:255" json:"guardian_name"`
	NIC          string    `gorm:"column:nic;size:50;not null;uniqueIndex" json:"nic"`
	Address      string    `gorm:"type:text" json:"address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for Patient model
func (Patient) TableName() string {
	return "patients"
}
