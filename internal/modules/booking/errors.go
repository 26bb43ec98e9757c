package booking

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrSlotTaken  = errors.New("slot already booked")
	ErrNotFound   = errors.New("booking not found")
)

// FieldErrors carries per-field validation failures for the 400 response
// body. Matches ErrValidation in errors.Is checks.
type FieldErrors struct {
	Fields map[string]string
}

func (e *FieldErrors) Error() string { return "invalid booking details" }

func (e *FieldErrors) Unwrap() error { return ErrValidation }
