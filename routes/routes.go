package routes

import (
	"glowdesk-backend/config"
	"glowdesk-backend/controllers"
	"glowdesk-backend/services"
	"glowdesk-backend/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps carries the wired services the route handlers need.
type Deps struct {
	Bookings   *services.BookingService
	Billing    *services.BillingService
	Gateway    *services.StripeGateway
	Reconciler *services.ReconcileService
	Limiter    utils.RateLimiter
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"https://app.glowdesk.digital",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.Use(config.PerformanceLogger())

	auth := r.Group("/auth")
	{
		auth.POST("/register", controllers.Register)
		auth.POST("/login", controllers.Login)

		auth.Use(utils.AuthMiddleware())
		auth.GET("/me", controllers.Me)
	}

	bookingController := controllers.BookingController{Service: d.Bookings}
	billingController := controllers.BillingController{Service: d.Billing, Gateway: d.Gateway}
	jobController := controllers.JobController{Reconciler: d.Reconciler}

	// Gateway webhooks authenticate by signature, not by token.
	r.POST("/webhooks/stripe", billingController.Webhook)

	// Scheduler trigger, protected by a bearer secret inside the handler.
	r.POST("/jobs/reconcile", jobController.Reconcile)

	api := r.Group("/api")
	api.Use(utils.AuthMiddleware())
	{
		// The rate-limit gate is advisory and only guards mutations.
		mutate := api.Group("")
		mutate.Use(utils.RateLimitMiddleware(d.Limiter))
		{
			mutate.POST("/bookings/:id/transition", bookingController.Transition)

			billing := mutate.Group("/billing")
			{
				billing.POST("/confirm-checkout", billingController.ConfirmCheckout)
				billing.POST("/cancel", billingController.ScheduleCancellation)
			}
		}
	}

	return r
}
