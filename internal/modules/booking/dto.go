package booking

type ReserveRequest struct {
	SlotID        int64  `json:"slot_id" binding:"required" validate:"required,gt=0"`
	CustomerName  string `json:"customer_name" binding:"required" validate:"required,max=200"`
	CustomerPhone string `json:"customer_phone" binding:"required" validate:"required,max=32"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	Address       string `json:"address" validate:"max=500"`
	Summary       string `json:"summary" binding:"required" validate:"required,max=2000"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}
