package sync

import (
	"errors"
	"fmt"
)

// ErrStaleCancelled marks a sync attempt drawn for a booking that has been
// cancelled since the work was queued; the attempt is skipped.
var ErrStaleCancelled = errors.New("booking cancelled, sync skipped")

// SyncError is the orchestrator's result value for a failed attempt. It is
// always absorbed into booking state and the ledger, never surfaced to the
// original caller.
type SyncError struct {
	Operation string
	Retryable bool
	Cause     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s failed (retryable=%t): %v", e.Operation, e.Retryable, e.Cause)
}

func (e *SyncError) Unwrap() error { return e.Cause }
