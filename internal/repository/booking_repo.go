package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"fieldbook/internal/domain"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) DB() *gorm.DB { return r.db }

// Create inserts the booking inside a single transaction. The partial unique
// index idx_active_slot_booking is the authoritative admission guard: a
// concurrent insert for the same slot surfaces here as a unique violation,
// which IsUniqueViolation recognizes.
func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// HasActiveBooking is the fast-reject availability check. It is a latency
// optimization only; correctness always rests on the unique index at insert
// time.
func (r *BookingRepository) HasActiveBooking(ctx context.Context, slotID int64) (bool, error) {
	var cnt int64
	tx := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("slot_id = ? AND status <> ?", slotID, domain.BookingCancelled).
		Count(&cnt)
	if tx.Error != nil {
		return false, tx.Error
	}
	return cnt > 0, nil
}

// Cancel marks the booking cancelled and records the reason. Cancelling an
// already-cancelled booking is a no-op; the slot is reusable the moment the
// status flips.
func (r *BookingRepository) Cancel(ctx context.Context, id int64, reason string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status <> ?", id, domain.BookingCancelled).
		Updates(map[string]any{
			"status":              domain.BookingCancelled,
			"cancellation_reason": reason,
			"cancelled_at":        now,
			"updated_at":          now,
		}).Error
}

// SetDispatchJob persists the external job identity. The job number is
// write-once: the guard keeps a replayed create from overwriting it.
func (r *BookingRepository) SetDispatchJob(ctx context.Context, id, jobNumber, customerID int64) error {
	return r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND service_titan_job_number IS NULL", id).
		Updates(map[string]any{
			"service_titan_job_number":  jobNumber,
			"service_titan_customer_id": customerID,
			"updated_at":                time.Now().UTC(),
		}).Error
}

// MarkSynced records a successful sync: status from the dispatch response,
// appointment reference, error field cleared.
func (r *BookingRepository) MarkSynced(ctx context.Context, id int64, status domain.BookingStatus, appointmentID string) error {
	updates := map[string]any{
		"status":              status,
		"service_titan_error": nil,
		"updated_at":          time.Now().UTC(),
	}
	if appointmentID != "" {
		updates["service_titan_appointment_id"] = appointmentID
	}
	return r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status <> ?", id, domain.BookingCancelled).
		Updates(updates).Error
}

// MarkSyncFailed records a failed sync on the booking itself; the error
// ledger carries the retry bookkeeping separately.
func (r *BookingRepository) MarkSyncFailed(ctx context.Context, id int64, status domain.BookingStatus, msg string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status <> ?", id, domain.BookingCancelled).
		Updates(map[string]any{
			"status":              status,
			"service_titan_error": msg,
			"updated_at":          time.Now().UTC(),
		}).Error
}

// IsUniqueViolation recognizes a unique-constraint failure from either
// backend: pgconn's typed error on PostgreSQL, message matching as the
// fallback (covers the SQLite test database).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
