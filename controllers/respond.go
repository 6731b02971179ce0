package controllers

import (
	"errors"
	"net/http"

	"glowdesk-backend/services"
	"glowdesk-backend/utils"

	"github.com/gin-gonic/gin"
)

// respondServiceError maps engine error kinds onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		utils.RespondWithError(c, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, services.ErrForbidden):
		utils.RespondWithError(c, http.StatusForbidden, "Forbidden")
	case errors.Is(err, services.ErrNotFound):
		utils.RespondWithError(c, http.StatusNotFound, "Not found")
	case services.IsInvalidTransition(err):
		utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrAlreadyScheduled):
		utils.RespondWithError(c, http.StatusBadRequest, "Cancellation already scheduled")
	case errors.Is(err, services.ErrPaymentIncomplete):
		utils.RespondWithError(c, http.StatusBadRequest, "Payment incomplete")
	case errors.Is(err, services.ErrGatewayUnavailable):
		utils.RespondWithError(c, http.StatusBadGateway, "Payment gateway unavailable, please retry")
	default:
		utils.RespondWithError(c, http.StatusInternalServerError, "Internal error")
	}
}
