package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fieldbook/internal/domain"
)

type ErrorLogRepository struct {
	db *gorm.DB
}

func NewErrorLogRepository(db *gorm.DB) *ErrorLogRepository {
	return &ErrorLogRepository{db: db}
}

func (r *ErrorLogRepository) Create(ctx context.Context, e *domain.ErrorLogEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *ErrorLogRepository) GetByID(ctx context.Context, id uint64) (*domain.ErrorLogEntry, error) {
	var e domain.ErrorLogEntry
	if err := r.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// ListUnresolvedRetryable returns the retry backlog oldest-first, bounded by
// limit. Resolved or exhausted entries are never returned.
func (r *ErrorLogRepository) ListUnresolvedRetryable(ctx context.Context, limit int) ([]domain.ErrorLogEntry, error) {
	var out []domain.ErrorLogEntry
	tx := r.db.WithContext(ctx).
		Where("resolved = ? AND retryable = ?", false, true).
		Order("created_at ASC").
		Limit(limit).
		Find(&out)
	return out, tx.Error
}

// ListDue narrows the backlog to entries whose backoff window has elapsed.
func (r *ErrorLogRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ErrorLogEntry, error) {
	var out []domain.ErrorLogEntry
	tx := r.db.WithContext(ctx).
		Where("resolved = ? AND retryable = ? AND next_retry_at <= ?", false, true, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&out)
	return out, tx.Error
}

// List is the operational-dashboard query: optional filters, oldest first.
func (r *ErrorLogRepository) List(ctx context.Context, resolved *bool, operation, serviceName string, limit, offset int) ([]domain.ErrorLogEntry, error) {
	q := r.db.WithContext(ctx).Model(&domain.ErrorLogEntry{})
	if resolved != nil {
		q = q.Where("resolved = ?", *resolved)
	}
	if operation != "" {
		q = q.Where("operation = ?", operation)
	}
	if serviceName != "" {
		q = q.Where("service_name = ?", serviceName)
	}

	var out []domain.ErrorLogEntry
	tx := q.Order("created_at ASC").Limit(limit).Offset(offset).Find(&out)
	return out, tx.Error
}

// Claim takes a lease on an entry so only one scheduler instance processes
// it. The guard accepts entries that are unlocked or whose lease has
// expired; a zero rows-affected result means another instance holds it.
// A plain guarded UPDATE works on both PostgreSQL and SQLite, unlike
// FOR UPDATE SKIP LOCKED.
func (r *ErrorLogRepository) Claim(ctx context.Context, id uint64, instanceID string, now time.Time, leaseTTL time.Duration) (bool, error) {
	cutoff := now.Add(-leaseTTL)
	tx := r.db.WithContext(ctx).
		Model(&domain.ErrorLogEntry{}).
		Where("id = ? AND resolved = ? AND retryable = ? AND (locked_by IS NULL OR locked_at < ?)",
			id, false, true, cutoff).
		Updates(map[string]any{
			"locked_by":  instanceID,
			"locked_at":  now,
			"updated_at": now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// MarkResolved terminally resolves an entry. resolved_at is always set
// together with resolved so the invariant cannot be violated from outside.
func (r *ErrorLogRepository) MarkResolved(ctx context.Context, id uint64, resolvedBy string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.ErrorLogEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"resolved":    true,
			"resolved_at": now,
			"resolved_by": resolvedBy,
			"locked_by":   nil,
			"locked_at":   nil,
			"updated_at":  now,
		}).Error
}

// RecordFailedAttempt bumps retry bookkeeping after a failed re-drive and
// releases the lease. retry_count only ever moves forward; entries past the
// retry budget flip to retryable=false and wait for manual resolution.
func (r *ErrorLogRepository) RecordFailedAttempt(ctx context.Context, id uint64, newCount int, nextRetryAt time.Time, exhausted bool) error {
	return r.db.WithContext(ctx).
		Model(&domain.ErrorLogEntry{}).
		Where("id = ? AND retry_count < ?", id, newCount).
		Updates(map[string]any{
			"retry_count":   newCount,
			"next_retry_at": nextRetryAt,
			"retryable":     !exhausted,
			"locked_by":     nil,
			"locked_at":     nil,
			"updated_at":    time.Now().UTC(),
		}).Error
}
