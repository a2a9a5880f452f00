package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hospital-waiting-room/internal/models"
	apperrors "hospital-waiting-room/pkg/errors"

	"gorm.io/gorm"
)

type VisitRepository struct {
	db *gorm.DB
}

func NewVisitRepo(db *gorm.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// Create inserts a new visit
func (r *VisitRepository) Create(ctx context.Context, visit *models.Visit) error {
	return r.db.WithContext(ctx).Create(visit).Error
}

// FindByID loads a visit with its patient
func (r *VisitRepository) FindByID(ctx context.Context, id uint) (*models.Visit, error) {
	var visit models.Visit
	err := r.db.WithContext(ctx).Preload("Patient").First(&visit, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("visit %d not found", id))
		}
		return nil, err
	}
	return &visit, nil
}

// ListBetween returns visits with from <= date < to, oldest first
func (r *VisitRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.Visit, error) {
	var visits []models.Visit
	err := r.db.WithContext(ctx).
		Preload("Patient").
		Where("date >= ? AND date < ?", from, to).
		Order("date ASC, id ASC").
		Find(&visits).Error
	return visits, err
}

// ListByPatient returns every visit of a patient, newest first
func (r *VisitRepository) ListByPatient(ctx context.Context, patientID uint) ([]models.Visit, error) {
	var visits []models.Visit
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("date DESC, id DESC").
		Find(&visits).Error
	return visits, err
}

// UpdateStatus sets only the status column
func (r *VisitRepository) UpdateStatus(ctx context.Context, id uint, status models.VisitStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Visit{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("visit %d not found", id))
	}
	return nil
}

// Finalize writes the treatment fields and marks the visit complete in one update
func (r *VisitRepository) Finalize(ctx context.Context, id uint, t models.Treatment, completedAt time.Time) error {
	updates := map[string]interface{}{
		"prescription": t.Prescription,
		"tests":        t.Tests,
		"medicines":    t.Medicines,
		"status":       models.VisitStatusComplete,
		"completed_at": completedAt,
	}
	res := r.db.WithContext(ctx).Model(&models.Visit{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("visit %d not found", id))
	}
	return nil
}
