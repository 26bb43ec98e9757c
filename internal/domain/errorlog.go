package domain

import "time"

// Resolution markers written to ErrorLogEntry.ResolvedBy.
const (
	ResolvedByAutoRetry      = "auto-retry"
	ResolvedByManual         = "manual"
	ResolvedByStaleCancelled = "stale-cancelled"
)

// ErrorLogEntry is a durable record of one failed operation. Entries are
// append/mutate-only and owned exclusively by the error ledger; retry_count
// never decreases and resolved entries always carry resolved_at.
type ErrorLogEntry struct {
	ID uint64 `json:"id" gorm:"column:id;primaryKey"`

	ErrorType   string `json:"error_type" gorm:"column:error_type;index"`
	Operation   string `json:"operation" gorm:"column:operation;index"`
	ServiceName string `json:"service_name" gorm:"column:service_name;index"`

	// Context is a sanitized key/value blob; secrets and personal data are
	// stripped before it is persisted.
	Context []byte `json:"context" gorm:"column:context;type:jsonb"`

	ErrorMessage string `json:"error_message" gorm:"column:error_message;type:text"`
	ErrorCode    string `json:"error_code" gorm:"column:error_code"`
	StackTrace   string `json:"stack_trace,omitempty" gorm:"column:stack_trace;type:text"`

	Retryable  bool `json:"retryable" gorm:"column:retryable;index"`
	RetryCount int  `json:"retry_count" gorm:"column:retry_count"`

	Resolved   bool       `json:"resolved" gorm:"column:resolved;index"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" gorm:"column:resolved_at"`
	ResolvedBy string     `json:"resolved_by,omitempty" gorm:"column:resolved_by"`

	// Retry scheduling state. The lock columns implement a lease so two
	// scheduler instances never process the same entry concurrently.
	NextRetryAt time.Time  `json:"next_retry_at" gorm:"column:next_retry_at;index"`
	LockedBy    *string    `json:"-" gorm:"column:locked_by"`
	LockedAt    *time.Time `json:"-" gorm:"column:locked_at"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (ErrorLogEntry) TableName() string { return "error_logs" }
