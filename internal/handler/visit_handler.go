package handler

import (
	"context"
	"net/http"

	"hospital-waiting-room/internal/middleware"
	"hospital-waiting-room/internal/models"
	"hospital-waiting-room/pkg/utils"

	"github.com/gin-gonic/gin"
)

// VisitService is the visit lifecycle as seen by the REST routes
type VisitService interface {
	RegisterVisit(ctx context.Context, patientID uint, actorID uint) (*models.Visit, error)
	ListTodaysVisits(ctx context.Context) ([]models.Visit, error)
	GetVisit(ctx context.Context, id uint) (*models.Visit, error)
	CompleteVisit(ctx context.Context, id uint, t models.Treatment, actorID uint) (*models.Visit, error)
	NotifyVisit(ctx context.Context, id uint, actorID uint) (*models.Visit, error)
	RemoveVisit(ctx context.Context, id uint, actorID uint) error
	UpdateStatus(ctx context.Context, id uint, status models.VisitStatus, actorID uint) (*models.Visit, error)
}

type VisitHandler struct {
	visitService VisitService
}

func NewVisitHandler(visitService VisitService) *VisitHandler {
	return &VisitHandler{
		visitService: visitService,
	}
}

type CreateVisitRequest struct {
	PatientID uint `json:"patient_id" binding:"required"`
}

type CompleteVisitRequest struct {
	Prescription string `json:"prescription"`
	Tests        string `json:"tests"`
	Medicines    string `json:"medicines"`
}

type UpdateStatusRequest struct {
	Status models.VisitStatus `json:"status" binding:"required"`
}

// CreateVisit registers a visit for an existing patient
func (h *VisitHandler) CreateVisit(c *gin.Context) {
	var req CreateVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: patient_id is required")
		return
	}

	visit, err := h.visitService.RegisterVisit(c.Request.Context(), req.PatientID, middleware.CurrentUserID(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, visit)
}

// ListToday returns today's visits in arrival order
func (h *VisitHandler) ListToday(c *gin.Context) {
	visits, err := h.visitService.ListTodaysVisits(c.Request.Context())
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"visits": visits})
}

// GetVisit returns one visit
func (h *VisitHandler) GetVisit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	visit, err := h.visitService.GetVisit(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, visit)
}

// CompleteVisit finalizes a visit with the doctor's treatment
func (h *VisitHandler) CompleteVisit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req CompleteVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	visit, err := h.visitService.CompleteVisit(c.Request.Context(), id, models.Treatment{
		Prescription: req.Prescription,
		Tests:        req.Tests,
		Medicines:    req.Medicines,
	}, middleware.CurrentUserID(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, visit)
}

// NotifyVisit calls the patient in
func (h *VisitHandler) NotifyVisit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	visit, err := h.visitService.NotifyVisit(c.Request.Context(), id, middleware.CurrentUserID(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, visit)
}

// RemoveVisit takes the visit off the waiting-room displays
func (h *VisitHandler) RemoveVisit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.visitService.RemoveVisit(c.Request.Context(), id, middleware.CurrentUserID(c)); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.MessageResponse(c, "Visit removed from waiting room")
}

// UpdateStatus moves a visit along its lifecycle
func (h *VisitHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: status is required")
		return
	}

	visit, err := h.visitService.UpdateStatus(c.Request.Context(), id, req.Status, middleware.CurrentUserID(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, visit)
}
