package controllers

import (
	"net/http"

	"glowdesk-backend/models"
	"glowdesk-backend/services"
	"glowdesk-backend/utils"

	"github.com/gin-gonic/gin"
)

// TransitionInput is the request body for a booking status change. Staff
// assignment is optional and may accompany any transition.
type TransitionInput struct {
	Status    string  `json:"status" binding:"required"`
	StaffID   *string `json:"staffId"`
	StaffName *string `json:"staffName"`
}

type BookingController struct {
	Service *services.BookingService
}

// Transition applies one booking status change for the caller's salon.
func (bc *BookingController) Transition(c *gin.Context) {
	caller, ok := utils.CurrentCaller(c)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "Caller identity not found in context")
		return
	}

	bookingID := c.Param("id")
	if bookingID == "" {
		utils.RespondWithError(c, http.StatusBadRequest, "Booking ID required")
		return
	}

	var input TransitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	status, ok := models.ParseBookingStatus(input.Status)
	if !ok {
		utils.RespondWithError(c, http.StatusBadRequest, "Unknown booking status: "+input.Status)
		return
	}

	var staff *models.StaffAssignment
	if input.StaffID != nil {
		staff = &models.StaffAssignment{StaffID: *input.StaffID}
		if input.StaffName != nil {
			staff.StaffName = *input.StaffName
		}
	}

	result, err := bc.Service.RequestTransition(c.Request.Context(), bookingID, status, caller.OwnerUID, caller.UserID, staff)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
