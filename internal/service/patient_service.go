package service

import (
	"context"
	"fmt"
	"strings"

	"hospital-waiting-room/internal/models"
	apperrors "hospital-waiting-room/pkg/errors"
)

type PatientService struct {
	patients PatientStore
	audit    AuditLogger
}

func NewPatientService(patients PatientStore, audit AuditLogger) *PatientService {
	return &PatientService{
		patients: patients,
		audit:    audit,
	}
}

// RegisterPatientRequest is the front-desk registration form
type RegisterPatientRequest struct {
	Name         string `json:"name" binding:"required"`
	GuardianName string `json:"guardian_name"`
	NIC          string `json:"nic" binding:"required"`
	Address      string `json:"address"`
}

// Register creates a patient. NICs are unique.
func (s *PatientService) Register(ctx context.Context, req RegisterPatientRequest, actorID uint) (*models.Patient, error) {
	patient := &models.Patient{
		Name:         strings.TrimSpace(req.Name),
		GuardianName: strings.TrimSpace(req.GuardianName),
		NIC:          strings.TrimSpace(req.NIC),
		Address:      strings.TrimSpace(req.Address),
	}
	if patient.Name == "" || patient.NIC == "" {
		return nil, apperrors.NewValidationError("name and nic are required")
	}

	if existing, err := s.patients.FindByNIC(ctx, patient.NIC); err == nil && existing != nil {
		return nil, apperrors.NewConflictError(fmt.Sprintf("patient with NIC %s already exists", patient.NIC))
	}

	if err := s.patients.Create(ctx, patient); err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeConflict) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to create patient", err)
	}

	_ = s.audit.CreateAuditLog(ctx, actor(actorID), models.AuditPatientRegistered,
		fmt.Sprintf("Patient %d registered", patient.ID))
	return patient, nil
}

// Get returns a patient by id
func (s *PatientService) Get(ctx context.Context, id uint) (*models.Patient, error) {
	patient, err := s.patients.FindByID(ctx, id)
	if err != nil && !apperrors.Is(err, apperrors.ErrorTypeNotFound) {
		return nil, apperrors.NewInternalError("failed to load patient", err)
	}
	return patient, err
}

// Search finds a patient by NIC, or lists patients when nic is empty
func (s *PatientService) Search(ctx context.Context, nic string, limit int) ([]models.Patient, error) {
	nic = strings.TrimSpace(nic)
	if nic == "" {
		patients, err := s.patients.List(ctx, limit)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to list patients", err)
		}
		if patients == nil {
			patients = []models.Patient{}
		}
		return patients, nil
	}

	patient, err := s.patients.FindByNIC(ctx, nic)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return []models.Patient{}, nil
		}
		return nil, apperrors.NewInternalError("failed to find patient", err)
	}
	return []models.Patient{*patient}, nil
}
