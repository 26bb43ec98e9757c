package sync

import (
	"context"

	"fieldbook/internal/domain"
	"fieldbook/internal/servicetitan"
)

// BookingRepository defines the booking mutations the orchestrator owns.
// No other component writes the service_titan_* fields.
type BookingRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	SetDispatchJob(ctx context.Context, id, jobNumber, customerID int64) error
	MarkSynced(ctx context.Context, id int64, status domain.BookingStatus, appointmentID string) error
	MarkSyncFailed(ctx context.Context, id int64, status domain.BookingStatus, msg string) error
}

// SlotReader resolves the slot window sent to the dispatch system.
type SlotReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Slot, error)
}

// DispatchClient is the external job-planning API boundary.
type DispatchClient interface {
	CreateJob(ctx context.Context, req servicetitan.JobRequest) (*servicetitan.Job, error)
	UpdateJob(ctx context.Context, jobID int64, req servicetitan.JobRequest) (*servicetitan.Job, error)
}

// LedgerRecorder records sync failures in the error ledger.
type LedgerRecorder interface {
	RecordSyncFailure(ctx context.Context, bookingID int64, operation string, callErr error, retryable bool) error
}

// StatusNotifier pushes booking status changes to live subscribers.
type StatusNotifier interface {
	BookingUpdated(b *domain.Booking)
}
