package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldbook/internal/domain"
	"fieldbook/internal/servicetitan"
)

const (
	OpCreateJob = "create_job"
	OpUpdateJob = "update_job"

	// OpSyncState marks failures of the sync pipeline's own loads and
	// stores, as opposed to the external call itself.
	OpSyncState = "sync_state"
)

type Service struct {
	bookings BookingRepository
	slots    SlotReader
	client   DispatchClient
	ledger   LedgerRecorder
	notify   StatusNotifier
	loggerf  func(format string, args ...interface{})
	timeout  time.Duration
}

func NewService(
	bookings BookingRepository,
	slots SlotReader,
	client DispatchClient,
	ledger LedgerRecorder,
	notify StatusNotifier,
	timeout time.Duration,
	loggerf func(format string, args ...interface{}),
) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		bookings: bookings,
		slots:    slots,
		client:   client,
		ledger:   ledger,
		notify:   notify,
		loggerf:  loggerf,
		timeout:  timeout,
	}
}

// SyncBooking propagates one booking to the dispatch system. A booking that
// already carries a job number is updated against that number — never
// created a second time; the stored number is the idempotency key. Failures
// are written to the booking's error fields, recorded in the error ledger,
// and returned as a *SyncError value, leaving no inconsistent state behind.
func (s *Service) SyncBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	return s.syncOnce(ctx, bookingID, true)
}

// RetryBooking is SyncBooking for the retry path: the scheduler already
// holds a ledger entry for the failure, so a failed re-attempt must bump
// that entry instead of recording a new one.
func (s *Service) RetryBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	return s.syncOnce(ctx, bookingID, false)
}

func (s *Service) syncOnce(ctx context.Context, bookingID int64, record bool) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, s.recordStateFailure(bookingID, fmt.Errorf("load booking %d: %w", bookingID, err), record)
	}
	if b.Status == domain.BookingCancelled {
		return b, ErrStaleCancelled
	}

	req, err := s.buildJobRequest(ctx, b)
	if err != nil {
		return nil, s.recordStateFailure(bookingID, err, record)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if b.ServiceTitanJobNumber != nil {
		return s.updateJob(callCtx, b, req, record)
	}
	return s.createJob(callCtx, b, req, record)
}

func (s *Service) createJob(ctx context.Context, b *domain.Booking, req servicetitan.JobRequest, record bool) (*domain.Booking, error) {
	job, err := s.client.CreateJob(ctx, req)
	if err != nil {
		return s.recordFailure(b, OpCreateJob, err, record)
	}

	// Persist the job identity before anything else. The window between the
	// create response and this write is the only spot where a crash can
	// produce a duplicate job on replay; keep it as small as possible.
	if err := s.bookings.SetDispatchJob(ctx, b.ID, job.JobNumber, job.CustomerID); err != nil {
		return nil, s.recordStateFailure(b.ID, fmt.Errorf("persist job number for booking %d: %w", b.ID, err), record)
	}

	return s.finishSync(ctx, b.ID, job, record)
}

func (s *Service) updateJob(ctx context.Context, b *domain.Booking, req servicetitan.JobRequest, record bool) (*domain.Booking, error) {
	job, err := s.client.UpdateJob(ctx, *b.ServiceTitanJobNumber, req)
	if err != nil {
		return s.recordFailure(b, OpUpdateJob, err, record)
	}
	return s.finishSync(ctx, b.ID, job, record)
}

func (s *Service) finishSync(ctx context.Context, bookingID int64, job *servicetitan.Job, record bool) (*domain.Booking, error) {
	status := statusFromJob(job.Status)
	if err := s.bookings.MarkSynced(ctx, bookingID, status, job.AppointmentID); err != nil {
		return nil, s.recordStateFailure(bookingID, fmt.Errorf("store sync result for booking %d: %w", bookingID, err), record)
	}

	updated, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, s.recordStateFailure(bookingID, fmt.Errorf("reload booking %d: %w", bookingID, err), record)
	}
	s.loggerf("level=info msg=booking synced booking_id=%d job_number=%v status=%s", bookingID, updated.ServiceTitanJobNumber, updated.Status)
	if s.notify != nil {
		s.notify.BookingUpdated(updated)
	}
	return updated, nil
}

// recordStateFailure absorbs a failure of the pipeline's own loads and
// stores. Booking state may be unreachable at that point, so the ledger
// entry is the durable trace; it is always retryable — the scheduler
// re-drives the booking once the store recovers. Without it a transient
// store error would strand the booking in pending, invisible to anyone.
func (s *Service) recordStateFailure(bookingID int64, cause error, record bool) error {
	s.loggerf("level=error msg=sync state operation failed booking_id=%d err=%v", bookingID, cause)

	if record && s.ledger != nil {
		storeCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.ledger.RecordSyncFailure(storeCtx, bookingID, OpSyncState, cause, true); err != nil {
			s.loggerf("level=error msg=failed to record ledger entry booking_id=%d err=%v", bookingID, err)
		}
	}

	return &SyncError{Operation: OpSyncState, Retryable: true, Cause: cause}
}

// recordFailure absorbs a failed external call: booking error fields,
// ledger entry (first attempt only), result value. Retryable failures leave
// the booking in "error" (subject to automatic retry); permanent ones in
// "failed".
func (s *Service) recordFailure(b *domain.Booking, operation string, callErr error, record bool) (*domain.Booking, error) {
	retryable := isRetryable(callErr)
	status := domain.BookingError
	if !retryable {
		status = domain.BookingFailed
	}

	// Detached context: the failing call may have burned the caller's
	// deadline, and the failure still has to be recorded.
	storeCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.bookings.MarkSyncFailed(storeCtx, b.ID, status, callErr.Error()); err != nil {
		s.loggerf("level=error msg=failed to store sync error booking_id=%d err=%v", b.ID, err)
	}
	if record && s.ledger != nil {
		if err := s.ledger.RecordSyncFailure(storeCtx, b.ID, operation, callErr, retryable); err != nil {
			s.loggerf("level=error msg=failed to record ledger entry booking_id=%d err=%v", b.ID, err)
		}
	}

	if updated, err := s.bookings.GetByID(storeCtx, b.ID); err == nil {
		b = updated
		if s.notify != nil {
			s.notify.BookingUpdated(updated)
		}
	}

	return b, &SyncError{Operation: operation, Retryable: retryable, Cause: callErr}
}

func (s *Service) buildJobRequest(ctx context.Context, b *domain.Booking) (servicetitan.JobRequest, error) {
	req := servicetitan.JobRequest{
		CustomerName:  b.CustomerName,
		CustomerPhone: b.CustomerPhone,
		CustomerEmail: b.CustomerEmail,
		Address:       b.Address,
		Summary:       b.Summary,
	}
	if b.SlotID != nil {
		slot, err := s.slots.GetByID(ctx, *b.SlotID)
		if err != nil {
			return req, fmt.Errorf("load slot %d: %w", *b.SlotID, err)
		}
		req.Start = slot.StartsAt
		req.End = slot.EndsAt
	}
	return req, nil
}

func isRetryable(err error) bool {
	var apiErr *servicetitan.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Unclassified failures (unexpected transport conditions) are treated
	// as transient.
	return true
}

// statusFromJob maps ServiceTitan job statuses onto the booking lifecycle.
func statusFromJob(st string) domain.BookingStatus {
	switch st {
	case "Scheduled":
		return domain.BookingScheduled
	case "Dispatched":
		return domain.BookingDispatched
	case "InProgress", "Working":
		return domain.BookingInProgress
	case "Completed":
		return domain.BookingCompleted
	case "Canceled":
		return domain.BookingCancelled
	default:
		return domain.BookingScheduled
	}
}
