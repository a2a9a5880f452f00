package models

import "time"

// WaitingRoomState represents the waiting_room_state table.
// One row per consultation desk holding the visit currently being served,
// so every display agrees on it after a reconnect.
type WaitingRoomState struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	DeskName       string     `gorm:"size:50;uniqueIndex;not null" json:"desk_name"`
	CurrentVisitID *uint      `gorm:"index" json:"current_visit_id"`
	NotifiedAt     *time.Time `json:"notified_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for WaitingRoomState model
func (WaitingRoomState) TableName() string {
	return "waiting_room_state"
}

// WaitingRoomEntry is the display projection of a visit. Never stored.
type WaitingRoomEntry struct {
	VisitID      uint        `json:"visit_id"`
	PatientName  string      `json:"patient_name"`
	GuardianName string      `json:"guardian_name"`
	Status       VisitStatus `json:"status"`
}

// EntryFromVisit projects a visit onto the fields a display may show
func EntryFromVisit(v *Visit) WaitingRoomEntry {
	return WaitingRoomEntry{
		VisitID:      v.ID,
		PatientName:  v.Patient.Name,
		GuardianName: v.Patient.GuardianName,
		Status:       v.Status,
	}
}
