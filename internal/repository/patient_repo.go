package repository

import (
	"context"
	"errors"
	"fmt"

	"hospital-waiting-room/internal/models"
	apperrors "hospital-waiting-room/pkg/errors"

	"gorm.io/gorm"
)

type PatientRepository struct {
	db *gorm.DB
}

func NewPatientRepo(db *gorm.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// Create inserts a patient. A duplicate NIC surfaces as a conflict.
func (r *PatientRepository) Create(ctx context.Context, patient *models.Patient) error {
	err := r.db.WithContext(ctx).Create(patient).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError(fmt.Sprintf("patient with NIC %s already exists", patient.NIC))
	}
	return err
}

// FindByID retrieves a patient by primary key
func (r *PatientRepository) FindByID(ctx context.Context, id uint) (*models.Patient, error) {
	var patient models.Patient
	err := r.db.WithContext(ctx).First(&patient, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("patient %d not found", id))
		}
		return nil, err
	}
	return &patient, nil
}

// FindByNIC retrieves a patient by national identity number
func (r *PatientRepository) FindByNIC(ctx context.Context, nic string) (*models.Patient, error) {
	var patient models.Patient
	err := r.db.WithContext(ctx).Where("nic = ?", nic).First(&patient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("patient not found for NIC " + nic)
		}
		return nil, err
	}
	return &patient, nil
}

// List returns patients ordered by name, limited to limit rows when limit > 0
func (r *PatientRepository) List(ctx context.Context, limit int) ([]models.Patient, error) {
	var patients []models.Patient
	q := r.db.WithContext(ctx).Order("name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&patients).Error
	return patients, err
}
