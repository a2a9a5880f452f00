package models

import (
	"strings"
	"time"
)

// VisitStatus is the lifecycle state of a visit
type VisitStatus string

const (
	VisitStatusIncomplete VisitStatus = "incomplete"
	VisitStatusPending    VisitStatus = "pending"
	VisitStatusComplete   VisitStatus = "complete"
)

// Valid reports whether s is one of the known statuses
func (s VisitStatus) Valid() bool {
	switch s {
	case VisitStatusIncomplete, VisitStatusPending, VisitStatusComplete:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s -> next.
// complete is terminal; nothing moves backwards.
func (s VisitStatus) CanTransitionTo(next VisitStatus) bool {
	switch s {
	case VisitStatusIncomplete:
		return next == VisitStatusPending || next == VisitStatusComplete
	case VisitStatusPending:
		return next == VisitStatusComplete
	}
	return false
}

// Visit represents one patient encounter
type Visit struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	PatientID    uint        `gorm:"not null;index" json:"patient_id"`
	Status       VisitStatus `gorm:"size:20;not null;default:'incomplete';index" json:"status"`
	Date         time.Time   `gorm:"not null;index" json:"date"`
	Prescription string      `gorm:"type:text" json:"prescription"`
	Tests        string      `gorm:"type:text" json:"tests"`
	Medicines    string      `gorm:"type:text" json:"medicines"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	// Relationships
	Patient Patient `gorm:"foreignKey:PatientID" json:"patient"`
}

// TableName specifies the table name for Visit model
func (Visit) TableName() string {
	return "visits"
}

// Treatment is what a doctor supplies to finalize a visit
type Treatment struct {
	Prescription string `json:"prescription"`
	Tests        string `json:"tests"`
	Medicines    string `json:"medicines"`
}

// Normalize trims surrounding whitespace from every field
func (t Treatment) Normalize() Treatment {
	return Treatment{
		Prescription: strings.TrimSpace(t.Prescription),
		Tests:        strings.TrimSpace(t.Tests),
		Medicines:    strings.TrimSpace(t.Medicines),
	}
}

// MissingFields lists the names of empty fields, in a stable order
func (t Treatment) MissingFields() []string {
	var missing []string
	n := t.Normalize()
	if n.Prescription == "" {
		missing = append(missing, "prescription")
	}
	if n.Tests == "" {
		missing = append(missing, "tests")
	}
	if n.Medicines == "" {
		missing = append(missing, "medicines")
	}
	return missing
}
