package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fieldbook/internal/domain"
)

type SlotRepository struct {
	db *gorm.DB
}

func NewSlotRepository(db *gorm.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) Create(ctx context.Context, s *domain.Slot) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*domain.Slot, error) {
	var s domain.Slot
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListUpcoming returns slots starting after the given time together with a
// booked flag. Listing only; availability computation belongs to a
// scheduling collaborator.
func (r *SlotRepository) ListUpcoming(ctx context.Context, after time.Time, limit int) ([]SlotWithState, error) {
	var out []SlotWithState
	q := `
SELECT s.id, s.starts_at, s.ends_at, s.zone,
       EXISTS (
           SELECT 1 FROM bookings b
           WHERE b.slot_id = s.id AND b.status <> 'cancelled'
       ) AS booked
FROM slots s
WHERE s.starts_at > ?
ORDER BY s.starts_at ASC
LIMIT ?
`
	tx := r.db.WithContext(ctx).Raw(q, after, limit).Scan(&out)
	return out, tx.Error
}

type SlotWithState struct {
	ID       int64     `json:"id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Zone     string    `json:"zone,omitempty"`
	Booked   bool      `json:"booked"`
}
