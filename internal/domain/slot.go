package domain

import "time"

// Slot is a discrete bookable time unit. Slot generation and availability
// computation live in the scheduling collaborator, not here.
type Slot struct {
	ID       int64     `json:"id" gorm:"column:id;primaryKey"`
	StartsAt time.Time `json:"starts_at" gorm:"column:starts_at;index"`
	EndsAt   time.Time `json:"ends_at" gorm:"column:ends_at"`
	Zone     string    `json:"zone,omitempty" gorm:"column:zone"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Slot) TableName() string { return "slots" }
