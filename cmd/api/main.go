package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"fieldbook/internal/config"
	"fieldbook/internal/database"
	"fieldbook/internal/middleware"
	"fieldbook/internal/modules/booking"
	"fieldbook/internal/modules/errorlog"
	"fieldbook/internal/modules/scheduler"
	syncmod "fieldbook/internal/modules/sync"
	"fieldbook/internal/modules/statusfeed"
	"fieldbook/internal/repository"
	"fieldbook/internal/servicetitan"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	bookingRepo := repository.NewBookingRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	errorLogRepo := repository.NewErrorLogRepository(db)

	hub := statusfeed.NewHub()
	defer hub.Close()

	ledger := errorlog.NewService(errorLogRepo)
	stClient := servicetitan.NewClient(cfg.ServiceTitan)
	syncService := syncmod.NewService(bookingRepo, slotRepo, stClient, ledger, hub, cfg.ServiceTitan.Timeout, log.Printf)

	bookingService := booking.NewService(bookingRepo, slotRepo, syncmod.NewTrigger(syncService))
	bookingHandler := booking.NewHandler(bookingService)

	errorHandler := errorlog.NewHandler(ledger)
	feedHandler := statusfeed.NewHandler(hub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retry := scheduler.New(errorLogRepo, syncService, cfg.Retry, log.Printf)
	go retry.Run(ctx)

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorLogger())

	v1 := r.Group("/api/v1")
	{
		bookingHandler.RegisterRoutes(v1)
		feedHandler.RegisterRoutes(v1)

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalTokenAuth(cfg.InternalToken))
		{
			errorHandler.RegisterRoutes(internal)
		}
	}

	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatal(err)
	}
}
