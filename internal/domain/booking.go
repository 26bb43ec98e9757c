package domain

import "time"

type BookingStatus string

const (
	// BookingPending is the state between admission and the first
	// successful sync; no external status is known yet.
	BookingPending BookingStatus = "pending"

	BookingScheduled  BookingStatus = "scheduled"
	BookingDispatched BookingStatus = "dispatched"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingFailed     BookingStatus = "failed"
	BookingError      BookingStatus = "error"
)

// Booking is one committed appointment. At most one booking per slot may be
// in a status other than cancelled; the partial unique index on slot_id is
// the authoritative guard for that.
type Booking struct {
	ID     int64  `json:"id" gorm:"column:id;primaryKey"`
	SlotID *int64 `json:"slot_id" gorm:"column:slot_id;uniqueIndex:idx_active_slot_booking,where:status <> 'cancelled'"`

	CustomerName  string `json:"customer_name" gorm:"column:customer_name" validate:"required,max=200"`
	CustomerPhone string `json:"customer_phone" gorm:"column:customer_phone" validate:"required,max=32"`
	CustomerEmail string `json:"customer_email,omitempty" gorm:"column:customer_email" validate:"omitempty,email"`
	Address       string `json:"address,omitempty" gorm:"column:address;type:text" validate:"max=500"`
	Summary       string `json:"summary" gorm:"column:summary;type:text" validate:"required,max=2000"`

	Status BookingStatus `json:"status" gorm:"column:status"`

	// ServiceTitan linkage. The job number is assigned exactly once by the
	// dispatch system and acts as the idempotency key for sync retries.
	ServiceTitanJobNumber     *int64  `json:"service_titan_job_number,omitempty" gorm:"column:service_titan_job_number"`
	ServiceTitanCustomerID    *int64  `json:"service_titan_customer_id,omitempty" gorm:"column:service_titan_customer_id"`
	ServiceTitanAppointmentID *string `json:"service_titan_appointment_id,omitempty" gorm:"column:service_titan_appointment_id"`
	ServiceTitanError         *string `json:"service_titan_error,omitempty" gorm:"column:service_titan_error;type:text"`

	CancellationReason string     `json:"cancellation_reason,omitempty" gorm:"column:cancellation_reason;type:text"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" gorm:"column:cancelled_at"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`

	Slot *Slot `json:"slot,omitempty" gorm:"foreignKey:SlotID"`
}

func (Booking) TableName() string { return "bookings" }

// Active reports whether the booking still occupies its slot.
func (b *Booking) Active() bool { return b.Status != BookingCancelled }
