package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"glowdesk-backend/config"
	"glowdesk-backend/models"
	"glowdesk-backend/routes"
	"glowdesk-backend/services"
	"glowdesk-backend/store"
	"glowdesk-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func init() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	config.ConnectDB()

	config.DB.AutoMigrate(
		&models.User{},
		&store.Document{},
	)
}

func main() {
	ctx := context.Background()

	documents := store.NewPostgresStore(config.DB)
	notifier := services.NewNotificationService(documents)
	defer notifier.Close()

	sink := services.NewAuditSink(documents, notifier)
	gateway := services.NewStripeGateway()

	bookings := services.NewBookingService(documents, sink)
	billing := services.NewBillingService(documents, gateway, sink)
	reconciler := services.NewReconcileService(documents, sink)

	notifier.StartWorker(ctx)
	notifier.StartScheduler(ctx)
	reconciler.StartScheduler(ctx)

	r := routes.SetupRouter(routes.Deps{
		Bookings:   bookings,
		Billing:    billing,
		Gateway:    gateway,
		Reconciler: reconciler,
		Limiter:    utils.NewWindowLimiter(60, time.Minute), // 60 mutations/min per caller
	})
	printRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}

func printRoutes(r *gin.Engine) {
	routes := r.Routes()
	for _, route := range routes {
		fmt.Printf("%-6s %s\n", route.Method, route.Path)
	}
}
