package handler

import (
	"net/http"

	"hospital-waiting-room/internal/config"
	"hospital-waiting-room/internal/middleware"
	"hospital-waiting-room/internal/models"

	"github.com/gin-gonic/gin"
)

// Handlers groups every route handler the router mounts
type Handlers struct {
	Auth        *AuthHandler
	Patients    *PatientHandler
	Visits      *VisitHandler
	WaitingRoom *WaitingRoomHandler
	Relay       gin.HandlerFunc
}

// NewRouter builds the gin engine with middleware and routes
func NewRouter(cfg *config.Config, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if h.Relay != nil {
		router.GET("/ws/waiting-room", h.Relay)
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/login", h.Auth.Login)
		v1.GET("/waiting-room", h.WaitingRoom.GetWaitingRoom)

		staff := v1.Group("")
		staff.Use(middleware.AuthMiddleware())
		{
			staff.POST("/auth/register", middleware.RequireAdmin(), h.Auth.Register)

			front := middleware.RequireRole(models.RoleReceptionist)
			doctor := middleware.RequireRole(models.RoleDoctor)
			anyStaff := middleware.RequireRole(models.RoleReceptionist, models.RoleDoctor)

			staff.POST("/patients", front, h.Patients.CreatePatient)
			staff.GET("/patients", anyStaff, h.Patients.ListPatients)
			staff.GET("/patients/:id", anyStaff, h.Patients.GetPatient)
			staff.GET("/patients/:id/visits", anyStaff, h.Patients.GetVisits)
			staff.GET("/patients/:id/history", doctor, h.Patients.GetHistory)

			staff.POST("/visits", front, h.Visits.CreateVisit)
			staff.GET("/visits/today", anyStaff, h.Visits.ListToday)
			staff.GET("/visits/:id", anyStaff, h.Visits.GetVisit)
			staff.POST("/visits/:id/complete", doctor, h.Visits.CompleteVisit)
			staff.POST("/visits/:id/notify", doctor, h.Visits.NotifyVisit)
			staff.POST("/visits/:id/remove", doctor, h.Visits.RemoveVisit)
			staff.PATCH("/visits/:id/status", doctor, h.Visits.UpdateStatus)
		}
	}

	return router
}
