package models

import "time"

// LedgerReceipt represents the ledger_receipts table.
// A row is written after every accepted ledger write and keeps the finalized
// treatment, so a visit whose store update failed can be completed later
// without writing to the ledger a second time.
type LedgerReceipt struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	VisitID      uint      `gorm:"not null;index" json:"visit_id"`
	RecordKey    string    `gorm:"size:64;not null;uniqueIndex" json:"record_key"`
	PatientKey   string    `gorm:"size:50;not null;index" json:"patient_key"`
	TxHash       string    `gorm:"size:80" json:"tx_hash"`
	BlockNumber  uint64    `json:"block_number"`
	Prescription string    `gorm:"type:text" json:"prescription"`
	Tests        string    `gorm:"type:text" json:"tests"`
	Medicines    string    `gorm:"type:text" json:"medicines"`
	VisitDate    time.Time `json:"visit_date"`
	Reconciled   bool      `gorm:"default:false;index" json:"reconciled"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for LedgerReceipt model
func (LedgerReceipt) TableName() string {
	return "ledger_receipts"
}

// Treatment returns the finalized fields carried by the receipt
func (r *LedgerReceipt) Treatment() Treatment {
	return Treatment{
		Prescription: r.Prescription,
		Tests:        r.Tests,
		Medicines:    r.Medicines,
	}
}
