package booking

import (
	"context"
	"time"

	"fieldbook/internal/domain"
	"fieldbook/internal/repository"
)

// BookingRepository defines the store operations admission needs.
type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	HasActiveBooking(ctx context.Context, slotID int64) (bool, error)
	Cancel(ctx context.Context, id int64, reason string) error
}

// SlotRepository provides slot lookups for validation and listing.
type SlotRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Slot, error)
	ListUpcoming(ctx context.Context, after time.Time, limit int) ([]repository.SlotWithState, error)
}

// SyncTrigger hands an admitted booking to the sync pipeline after commit.
// Implementations must never block or fail the admission response.
type SyncTrigger interface {
	TriggerSync(bookingID int64)
}
