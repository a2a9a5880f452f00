package utils

import (
	"errors"
	"net/http"

	apperrors "hospital-waiting-room/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SuccessResponse sends a standard success JSON response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// CreatedResponse sends a 201 with the created resource
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    data,
	})
}

// ErrorResponse sends a standard error JSON response
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   message,
	})
}

// MessageResponse sends a simple message response
func MessageResponse(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
	})
}

// StatusFor maps an error type to its HTTP status
func StatusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeLedgerWrite:
		return http.StatusBadGateway
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes err as an error response. Internal details stay in the log.
func HandleError(c *gin.Context, err error) {
	errType := apperrors.TypeOf(err)
	status := StatusFor(errType)
	if status >= http.StatusInternalServerError || errType == apperrors.ErrorTypeLedgerWrite {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}

	msg := "internal server error"
	var appErr *apperrors.AppError
	if errType != apperrors.ErrorTypeInternal && errors.As(err, &appErr) {
		msg = appErr.Message
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    errType,
	})
}
