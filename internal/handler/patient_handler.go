package handler

import (
	"context"
	"net/http"
	"strconv"

	"hospital-waiting-room/internal/ledger"
	"hospital-waiting-room/internal/middleware"
	"hospital-waiting-room/internal/models"
	"hospital-waiting-room/internal/service"
	"hospital-waiting-room/pkg/utils"

	"github.com/gin-gonic/gin"
)

// PatientService is what the patient routes need from the service layer
type PatientService interface {
	Register(ctx context.Context, req service.RegisterPatientRequest, actorID uint) (*models.Patient, error)
	Get(ctx context.Context, id uint) (*models.Patient, error)
	Search(ctx context.Context, nic string, limit int) ([]models.Patient, error)
}

// HistoryReader reads a patient's past visits and anchored records
type HistoryReader interface {
	PatientVisits(ctx context.Context, patientID uint) ([]models.Visit, error)
	PatientHistory(ctx context.Context, patientID uint) ([]ledger.Record, error)
}

type PatientHandler struct {
	patientService PatientService
	history        HistoryReader
}

func NewPatientHandler(patientService PatientService, history HistoryReader) *PatientHandler {
	return &PatientHandler{
		patientService: patientService,
		history:        history,
	}
}

// CreatePatient registers a patient at the front desk
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	var req service.RegisterPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	patient, err := h.patientService.Register(c.Request.Context(), req, middleware.CurrentUserID(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, patient)
}

// ListPatients lists patients, or finds one with ?nic=
func (h *PatientHandler) ListPatients(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	patients, err := h.patientService.Search(c.Request.Context(), c.Query("nic"), limit)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, patients)
}

// GetPatient returns one patient
func (h *PatientHandler) GetPatient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	patient, err := h.patientService.Get(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, patient)
}

// GetVisits returns the patient's visits, newest first
func (h *PatientHandler) GetVisits(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	visits, err := h.history.PatientVisits(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"visits": visits})
}

// GetHistory returns the patient's records from the ledger
func (h *PatientHandler) GetHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	records, err := h.history.PatientHistory(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"records": records})
}

// parseID reads the :id path parameter, answering 400 when it is not a
// positive integer
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return uint(id), true
}
