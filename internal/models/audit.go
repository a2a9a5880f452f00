package models

import "time"

// Audit actions recorded by the visit lifecycle
const (
	AuditVisitRegistered   = "visit_registered"
	AuditVisitNotified     = "visit_notified"
	AuditVisitRemoved      = "visit_removed"
	AuditVisitCompleted    = "visit_completed"
	AuditVisitStatus       = "visit_status_update"
	AuditLedgerWriteFailed = "ledger_write_failed"
	AuditLedgerReceiptLost = "ledger_receipt_lost"
	AuditVisitReconciled   = "visit_reconciled"
	AuditPatientRegistered = "patient_registered"
	AuditUserLogin         = "user_login"
	AuditUserRegistration  = "user_registration"
)

// AuditLog represents the audit_logs table
// Used for tracking who moved a visit through its lifecycle
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id"`
	Action    string    `gorm:"size:100;not null" json:"action"`
	Details   string    `gorm:"type:text" json:"details"`
	CreatedAt time.Time `json:"created_at"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}
