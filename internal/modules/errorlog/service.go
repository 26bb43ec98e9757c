package errorlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"fieldbook/internal/domain"
	"fieldbook/internal/repository"
	"fieldbook/internal/servicetitan"
)

const ServiceNameServiceTitan = "servicetitan"

// Service is the error ledger. It is the only writer of error_logs rows;
// the retry scheduler mutates entries exclusively through the ledger
// repository it shares with this service.
type Service struct {
	entries *repository.ErrorLogRepository
}

func NewService(entries *repository.ErrorLogRepository) *Service {
	return &Service{entries: entries}
}

type RecordParams struct {
	ErrorType   string
	Operation   string
	ServiceName string
	Context     map[string]any
	Message     string
	Code        string
	StackTrace  string
	Retryable   bool
}

// Record creates one ledger entry for one failed operation. Each call
// creates a new entry; callers must not double-record within a single
// attempt.
func (s *Service) Record(ctx context.Context, p RecordParams) (*domain.ErrorLogEntry, error) {
	blob, err := json.Marshal(sanitizeContext(p.Context))
	if err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}

	e := &domain.ErrorLogEntry{
		ErrorType:    p.ErrorType,
		Operation:    p.Operation,
		ServiceName:  p.ServiceName,
		Context:      blob,
		ErrorMessage: truncate(p.Message, 4000),
		ErrorCode:    p.Code,
		StackTrace:   truncate(p.StackTrace, 8000),
		Retryable:    p.Retryable,
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create ledger entry: %w", err)
	}
	return e, nil
}

// RecordSyncFailure is the sync orchestrator's entry point into the ledger.
func (s *Service) RecordSyncFailure(ctx context.Context, bookingID int64, operation string, callErr error, retryable bool) error {
	code := ""
	var apiErr *servicetitan.APIError
	if errors.As(callErr, &apiErr) {
		code = string(apiErr.Kind)
	}

	_, err := s.Record(ctx, RecordParams{
		ErrorType:   "sync_error",
		Operation:   operation,
		ServiceName: ServiceNameServiceTitan,
		Context:     map[string]any{"booking_id": bookingID},
		Message:     callErr.Error(),
		Code:        code,
		Retryable:   retryable,
	})
	return err
}

func (s *Service) MarkResolved(ctx context.Context, id uint64, resolvedBy string) error {
	if resolvedBy == "" {
		resolvedBy = domain.ResolvedByManual
	}
	return s.entries.MarkResolved(ctx, id, resolvedBy)
}

func (s *Service) ListUnresolvedRetryable(ctx context.Context, limit int) ([]domain.ErrorLogEntry, error) {
	return s.entries.ListUnresolvedRetryable(ctx, limit)
}

func (s *Service) List(ctx context.Context, resolved *bool, operation, serviceName string, limit, offset int) ([]domain.ErrorLogEntry, error) {
	return s.entries.List(ctx, resolved, operation, serviceName, limit, offset)
}

// BookingIDFromContext extracts the booking reference the retry path needs.
func BookingIDFromContext(e *domain.ErrorLogEntry) (int64, bool) {
	var ctx struct {
		BookingID int64 `json:"booking_id"`
	}
	if err := json.Unmarshal(e.Context, &ctx); err != nil || ctx.BookingID == 0 {
		return 0, false
	}
	return ctx.BookingID, true
}

// sanitizeContext strips keys that could carry secrets or personal data.
// The ledger feeds dashboards; it must be safe to read broadly.
func sanitizeContext(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if sensitiveKey(k) {
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = truncate(s, 500)
			continue
		}
		out[k] = v
	}
	return out
}

func sensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, bad := range []string{"password", "secret", "token", "authorization", "api_key", "email", "phone"} {
		if strings.Contains(k, bad) {
			return true
		}
	}
	return false
}

// truncate cuts to at most max bytes, backing up to a rune boundary so
// the stored value stays valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
