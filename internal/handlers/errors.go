package handlers

import (
	"errors"
	"net/http"

	"referr/internal/models"
	"referr/internal/utils"
	"referr/pkg/logger"

	"github.com/gin-gonic/gin"
)

// respondError maps a service error onto the response envelope. Anything
// unrecognised is logged and reported as a 500 without detail.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		utils.ValidationErrorResponse(c, utils.ValidationErrorDetails(err))
	case errors.Is(err, models.ErrInvalidCode):
		utils.ErrorResponse(c, http.StatusBadRequest, "INVALID_CODE", "Invalid OTP")
	case errors.Is(err, models.ErrCodeExpired):
		utils.ErrorResponse(c, http.StatusBadRequest, "CODE_EXPIRED", "OTP expired, please request a new one")
	case errors.Is(err, models.ErrNotFound):
		utils.NotFoundResponse(c, "Resource")
	case errors.Is(err, models.ErrConflict):
		utils.ErrorResponse(c, http.StatusConflict, "CONFLICT", "Resource already exists")
	case errors.Is(err, models.ErrDispatchFailure):
		utils.ErrorResponse(c, http.StatusBadGateway, "DISPATCH_FAILED", "Failed to send OTP")
	default:
		log.WithContext(c.Request.Context()).WithError(err).
			WithField("path", c.Request.URL.Path).
			Error("Request failed")
		utils.InternalServerErrorResponse(c)
	}
}

