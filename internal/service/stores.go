package service

import (
	"context"
	"time"

	"hospital-waiting-room/internal/models"
)

// The repository package satisfies these; services depend on the
// interfaces so they can be exercised without a database.

type VisitStore interface {
	Create(ctx context.Context, visit *models.Visit) error
	FindByID(ctx context.Context, id uint) (*models.Visit, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]models.Visit, error)
	ListByPatient(ctx context.Context, patientID uint) ([]models.Visit, error)
	UpdateStatus(ctx context.Context, id uint, status models.VisitStatus) error
	Finalize(ctx context.Context, id uint, t models.Treatment, completedAt time.Time) error
}

type PatientStore interface {
	Create(ctx context.Context, patient *models.Patient) error
	FindByID(ctx context.Context, id uint) (*models.Patient, error)
	FindByNIC(ctx context.Context, nic string) (*models.Patient, error)
	List(ctx context.Context, limit int) ([]models.Patient, error)
}

type WaitingRoomStore interface {
	GetState(ctx context.Context, desk string) (*models.WaitingRoomState, error)
	SetCurrent(ctx context.Context, desk string, visitID uint, at time.Time) error
	ClearCurrentIf(ctx context.Context, desk string, visitID uint) error
}

type ReceiptStore interface {
	Create(ctx context.Context, receipt *models.LedgerReceipt) error
	FindByRecordKey(ctx context.Context, key string) (*models.LedgerReceipt, error)
	ListUnreconciled(ctx context.Context, limit int) ([]models.LedgerReceipt, error)
	MarkReconciled(ctx context.Context, id uint) error
}

type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	CountByRole(ctx context.Context, role string) (int64, error)
}

type AuditLogger interface {
	CreateAuditLog(ctx context.Context, userID *uint, action string, details string) error
}

// actor converts a staff id from the request context into the audit log's
// nullable user id. Zero means the system itself.
func actor(userID uint) *uint {
	if userID == 0 {
		return nil
	}
	return &userID
}
