package booking

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"fieldbook/internal/domain"
	"fieldbook/internal/pkg/validator"
	"fieldbook/internal/repository"
)

type Service struct {
	bookings BookingRepository
	slots    SlotRepository
	sync     SyncTrigger
}

func NewService(bookings BookingRepository, slots SlotRepository, sync SyncTrigger) *Service {
	return &Service{
		bookings: bookings,
		slots:    slots,
		sync:     sync,
	}
}

// Reserve admits a booking for a slot. Exactly one caller wins a contested
// slot: the insert runs against the partial unique index and a constraint
// violation is the expected conflict signal, not an exceptional path. The
// preceding availability check only short-circuits the obvious losers.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*domain.Booking, error) {
	if req.SlotID <= 0 {
		return nil, ErrValidation
	}
	if fields := validator.Validate(req); fields != nil {
		return nil, &FieldErrors{Fields: fields}
	}

	if _, err := s.slots.GetByID(ctx, req.SlotID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrValidation
		}
		return nil, fmt.Errorf("slot lookup: %w", err)
	}

	// Fast reject. Racy by nature; the unique index below is what actually
	// decides the winner.
	taken, err := s.bookings.HasActiveBooking(ctx, req.SlotID)
	if err != nil {
		return nil, fmt.Errorf("availability check: %w", err)
	}
	if taken {
		return nil, ErrSlotTaken
	}

	slotID := req.SlotID
	b := &domain.Booking{
		SlotID:        &slotID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Address:       req.Address,
		Summary:       req.Summary,
		Status:        domain.BookingPending,
	}

	if err := s.bookings.Create(ctx, b); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	// Post-commit hand-off. The booking is durably admitted at this point;
	// sync outcome never affects the admission response.
	if s.sync != nil {
		s.sync.TriggerSync(b.ID)
	}

	return b, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Cancel sets the booking to cancelled, which frees the slot for a new
// reservation immediately. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*domain.Booking, error) {
	b, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BookingCancelled {
		return b, nil
	}

	if err := s.bookings.Cancel(ctx, id, reason); err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	return s.GetByID(ctx, id)
}
