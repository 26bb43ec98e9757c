package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"fieldbook/internal/database"
	"fieldbook/internal/domain"
)

// Seeds a week of hourly schedule slots for local development.
func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "fieldbook.db"
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("Migrate failed:", err)
	}

	log.Println("Cleaning old data...")
	db.Exec("DELETE FROM error_logs")
	db.Exec("DELETE FROM bookings")
	db.Exec("DELETE FROM slots")

	start := time.Now().UTC().Truncate(24 * time.Hour)
	created := 0
	for day := 1; day <= 7; day++ {
		for hour := 8; hour < 18; hour++ {
			s := domain.Slot{
				StartsAt: start.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour),
				Zone:     "default",
			}
			s.EndsAt = s.StartsAt.Add(time.Hour)
			if err := db.Create(&s).Error; err != nil {
				log.Fatal("seed slot failed:", err)
			}
			created++
		}
	}

	log.Printf("seed completed: slots=%d", created)
}
