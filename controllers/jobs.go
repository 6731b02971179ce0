package controllers

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strings"

	"glowdesk-backend/services"
	"glowdesk-backend/utils"

	"github.com/gin-gonic/gin"
)

type JobController struct {
	Reconciler *services.ReconcileService
}

// Reconcile triggers one grace-period reconciliation pass. The endpoint is
// meant for an external scheduler and is protected by a bearer secret;
// when RECONCILE_SECRET is unset the check is skipped (local development).
func (jc *JobController) Reconcile(c *gin.Context) {
	secret := os.Getenv("RECONCILE_SECRET")
	if secret != "" {
		header := c.GetHeader("Authorization")
		header = strings.TrimPrefix(header, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(header), []byte(secret)) != 1 {
			utils.RespondWithError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
	} else {
		log.Println("RECONCILE_SECRET not set, accepting unauthenticated job trigger")
	}

	suspended, err := jc.Reconciler.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Reconciliation failed",
			"suspended": suspended,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"suspended": suspended})
}
