package controllers

import (
	"io"
	"net/http"

	"glowdesk-backend/services"
	"glowdesk-backend/utils"

	"github.com/gin-gonic/gin"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

type ConfirmCheckoutInput struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type BillingController struct {
	Service *services.BillingService
	Gateway *services.StripeGateway
}

// ConfirmCheckout verifies the caller's checkout session with the gateway
// and activates the subscription.
func (bc *BillingController) ConfirmCheckout(c *gin.Context) {
	caller, ok := utils.CurrentCaller(c)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "Caller identity not found in context")
		return
	}

	var input ConfirmCheckoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	rec, err := bc.Service.ConfirmCheckout(c.Request.Context(), input.SessionID, caller.OwnerUID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"billingStatus":    rec.BillingStatus,
		"trialEnd":         rec.TrialEnd,
		"currentPeriodEnd": rec.CurrentPeriodEnd,
	})
}

// ScheduleCancellation flags the caller's subscription to end at the close
// of the current period.
func (bc *BillingController) ScheduleCancellation(c *gin.Context) {
	caller, ok := utils.CurrentCaller(c)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "Caller identity not found in context")
		return
	}

	if err := bc.Service.ScheduleCancellation(c.Request.Context(), caller.OwnerUID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cancellation scheduled for end of billing period"})
}

// Webhook receives payment-gateway events. Signature verification happens
// before anything is touched; unhandled event types are acknowledged so the
// gateway stops redelivering them.
func (bc *BillingController) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	event, err := bc.Gateway.VerifyEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid signature")
		return
	}

	if err := bc.Service.ApplyGatewayEvent(c.Request.Context(), event); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
