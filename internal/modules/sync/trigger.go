package sync

import "context"

// Trigger is the post-commit hand-off from admission to sync. The explicit
// pipeline step runs on a background goroutine with a detached context so a
// slow or failing dispatch call can never block or fail the admission
// response.
type Trigger struct {
	service *Service
}

func NewTrigger(service *Service) *Trigger {
	return &Trigger{service: service}
}

func (t *Trigger) TriggerSync(bookingID int64) {
	go func() {
		if _, err := t.service.SyncBooking(context.Background(), bookingID); err != nil {
			// Already absorbed into booking state and the ledger; log only.
			t.service.loggerf("level=warn msg=initial sync failed booking_id=%d err=%v", bookingID, err)
		}
	}()
}

// InlineTrigger runs the hand-off synchronously. Used where deterministic
// ordering matters (tests, CLI tooling).
type InlineTrigger struct {
	service *Service
}

func NewInlineTrigger(service *Service) *InlineTrigger {
	return &InlineTrigger{service: service}
}

func (t *InlineTrigger) TriggerSync(bookingID int64) {
	if _, err := t.service.SyncBooking(context.Background(), bookingID); err != nil {
		t.service.loggerf("level=warn msg=initial sync failed booking_id=%d err=%v", bookingID, err)
	}
}
