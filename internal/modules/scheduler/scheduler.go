package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"fieldbook/internal/config"
	"fieldbook/internal/domain"
	"fieldbook/internal/modules/errorlog"
	syncmod "fieldbook/internal/modules/sync"
)

// LedgerStore is the slice of the error-ledger repository the scheduler
// drives.
type LedgerStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ErrorLogEntry, error)
	Claim(ctx context.Context, id uint64, instanceID string, now time.Time, leaseTTL time.Duration) (bool, error)
	MarkResolved(ctx context.Context, id uint64, resolvedBy string) error
	RecordFailedAttempt(ctx context.Context, id uint64, newCount int, nextRetryAt time.Time, exhausted bool) error
}

// Syncer re-drives a booking through the sync orchestrator without
// creating fresh ledger entries.
type Syncer interface {
	RetryBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)
}

// Scheduler re-drives unresolved retryable ledger entries on a backoff
// schedule. Multiple instances may run concurrently; the per-entry lease
// in the ledger keeps them from double-processing.
type Scheduler struct {
	id      string
	ledger  LedgerStore
	syncer  Syncer
	cfg     config.Retry
	loggerf func(format string, args ...interface{})
}

func New(ledger LedgerStore, syncer Syncer, cfg config.Retry, loggerf func(format string, args ...interface{})) *Scheduler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Scheduler{
		id:      uuid.NewString(),
		ledger:  ledger,
		syncer:  syncer,
		cfg:     cfg,
		loggerf: loggerf,
	}
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.loggerf("level=info msg=retry scheduler started instance=%s interval=%s", s.id, s.cfg.PollInterval)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.loggerf("level=info msg=retry scheduler stopped instance=%s", s.id)
			return
		case <-ticker.C:
			if err := s.runCycle(ctx, time.Now().UTC()); err != nil {
				s.loggerf("level=error msg=retry cycle finished with errors instance=%s err=%v", s.id, err)
			}
		}
	}
}

// runCycle fetches one bounded batch of due entries, oldest first, and
// processes each under a lease. Per-entry failures are aggregated so one
// bad entry never stalls the rest of the batch.
func (s *Scheduler) runCycle(ctx context.Context, now time.Time) error {
	due, err := s.ledger.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for i := range due {
		if err := s.processEntry(ctx, &due[i], now); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (s *Scheduler) processEntry(ctx context.Context, e *domain.ErrorLogEntry, now time.Time) error {
	claimed, err := s.ledger.Claim(ctx, e.ID, s.id, now, s.cfg.LeaseTTL)
	if err != nil {
		return err
	}
	if !claimed {
		// Another instance holds the lease, or the entry was resolved
		// between listing and claiming.
		return nil
	}

	bookingID, ok := errorlog.BookingIDFromContext(e)
	if !ok {
		s.loggerf("level=warn msg=ledger entry has no booking reference entry_id=%d", e.ID)
		return s.failAttempt(ctx, e, now, true)
	}

	_, syncErr := s.syncer.RetryBooking(ctx, bookingID)
	switch {
	case syncErr == nil:
		s.loggerf("level=info msg=retry succeeded entry_id=%d booking_id=%d retry_count=%d", e.ID, bookingID, e.RetryCount)
		return s.ledger.MarkResolved(ctx, e.ID, domain.ResolvedByAutoRetry)

	case errors.Is(syncErr, syncmod.ErrStaleCancelled):
		s.loggerf("level=info msg=retry skipped for cancelled booking entry_id=%d booking_id=%d", e.ID, bookingID)
		return s.ledger.MarkResolved(ctx, e.ID, domain.ResolvedByStaleCancelled)

	default:
		var se *syncmod.SyncError
		permanent := errors.As(syncErr, &se) && !se.Retryable
		s.loggerf("level=warn msg=retry failed entry_id=%d booking_id=%d retry_count=%d permanent=%t err=%v",
			e.ID, bookingID, e.RetryCount, permanent, syncErr)
		return s.failAttempt(ctx, e, now, permanent)
	}
}

// failAttempt bumps retry bookkeeping after a failed re-drive. The entry
// becomes non-retryable once the budget is spent or the failure turned
// permanent; it then waits for manual resolution.
func (s *Scheduler) failAttempt(ctx context.Context, e *domain.ErrorLogEntry, now time.Time, permanent bool) error {
	newCount := e.RetryCount + 1
	exhausted := permanent || newCount >= s.cfg.MaxRetries
	next := now.Add(backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffCap, newCount))
	return s.ledger.RecordFailedAttempt(ctx, e.ID, newCount, next, exhausted)
}
