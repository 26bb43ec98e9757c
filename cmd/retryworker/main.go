package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fieldbook/internal/config"
	"fieldbook/internal/database"
	"fieldbook/internal/modules/errorlog"
	"fieldbook/internal/modules/scheduler"
	syncmod "fieldbook/internal/modules/sync"
	"fieldbook/internal/repository"
	"fieldbook/internal/servicetitan"
)

// Standalone retry worker. Any number of these may run next to the API
// process; the ledger lease keeps them from stepping on each other.
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

	bookingRepo := repository.NewBookingRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	errorLogRepo := repository.NewErrorLogRepository(db)

	ledger := errorlog.NewService(errorLogRepo)
	stClient := servicetitan.NewClient(cfg.ServiceTitan)
	syncService := syncmod.NewService(bookingRepo, slotRepo, stClient, ledger, nil, cfg.ServiceTitan.Timeout, log.Printf)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.New(errorLogRepo, syncService, cfg.Retry, log.Printf).Run(ctx)
}
