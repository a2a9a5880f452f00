package handler

import (
	"context"
	"net/http"

	"hospital-waiting-room/internal/middleware"
	"hospital-waiting-room/internal/service"
	"hospital-waiting-room/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AuthService is what the auth routes need from the service layer
type AuthService interface {
	Login(ctx context.Context, username, password string) (*service.LoginResponse, error)
	Register(ctx context.Context, username, password, role string, actorID uint) (*service.UserResponse, error)
}

type AuthHandler struct {
	authService AuthService
}

func NewAuthHandler(authService AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,oneof=admin receptionist doctor"`
}

// Login handles staff authentication
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	response, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, response)
}

// Register creates a staff account (admin only)
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Username, req.Password, req.Role, middleware.CurrentUserID(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, user)
}
