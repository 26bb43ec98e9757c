package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fieldbook/internal/domain"
	"fieldbook/internal/servicetitan"
)

type MockBookingRepo struct {
	mock.Mock
}

func (m *MockBookingRepo) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepo) SetDispatchJob(ctx context.Context, id, jobNumber, customerID int64) error {
	args := m.Called(ctx, id, jobNumber, customerID)
	return args.Error(0)
}

func (m *MockBookingRepo) MarkSynced(ctx context.Context, id int64, status domain.BookingStatus, appointmentID string) error {
	args := m.Called(ctx, id, status, appointmentID)
	return args.Error(0)
}

func (m *MockBookingRepo) MarkSyncFailed(ctx context.Context, id int64, status domain.BookingStatus, msg string) error {
	args := m.Called(ctx, id, status, msg)
	return args.Error(0)
}

type MockSlotReader struct {
	mock.Mock
}

func (m *MockSlotReader) GetByID(ctx context.Context, id int64) (*domain.Slot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Slot), args.Error(1)
}

type MockDispatchClient struct {
	mock.Mock
}

func (m *MockDispatchClient) CreateJob(ctx context.Context, req servicetitan.JobRequest) (*servicetitan.Job, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*servicetitan.Job), args.Error(1)
}

func (m *MockDispatchClient) UpdateJob(ctx context.Context, jobID int64, req servicetitan.JobRequest) (*servicetitan.Job, error) {
	args := m.Called(ctx, jobID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*servicetitan.Job), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) RecordSyncFailure(ctx context.Context, bookingID int64, operation string, callErr error, retryable bool) error {
	args := m.Called(ctx, bookingID, operation, callErr, retryable)
	return args.Error(0)
}

func pendingBooking() *domain.Booking {
	slotID := int64(42)
	return &domain.Booking{
		ID:            5,
		SlotID:        &slotID,
		CustomerName:  "Dana Fox",
		CustomerPhone: "+15550100",
		Summary:       "water heater replacement",
		Status:        domain.BookingPending,
	}
}

func syncedBooking() *domain.Booking {
	b := pendingBooking()
	job := int64(700123)
	b.ServiceTitanJobNumber = &job
	b.Status = domain.BookingScheduled
	return b
}

func feedSlot() *domain.Slot {
	start := time.Now().UTC().Add(24 * time.Hour)
	return &domain.Slot{ID: 42, StartsAt: start, EndsAt: start.Add(time.Hour)}
}

func newTestService(repo *MockBookingRepo, slots *MockSlotReader, client *MockDispatchClient, ledger *MockLedger) *Service {
	return NewService(repo, slots, client, ledger, nil, 5*time.Second, nil)
}

func TestSyncBooking_CreatePersistsJobNumberBeforeAnythingElse(t *testing.T) {
	repo := new(MockBookingRepo)
	slots := new(MockSlotReader)
	client := new(MockDispatchClient)
	ledger := new(MockLedger)

	var order []string

	repo.On("GetByID", mock.Anything, int64(5)).Return(pendingBooking(), nil).Once()
	slots.On("GetByID", mock.Anything, int64(42)).Return(feedSlot(), nil)
	client.On("CreateJob", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "create") }).
		Return(&servicetitan.Job{ID: 1, JobNumber: 700123, CustomerID: 88, AppointmentID: "A-1", Status: "Scheduled"}, nil)
	repo.On("SetDispatchJob", mock.Anything, int64(5), int64(700123), int64(88)).
		Run(func(mock.Arguments) { order = append(order, "persist-job") }).
		Return(nil)
	repo.On("MarkSynced", mock.Anything, int64(5), domain.BookingScheduled, "A-1").
		Run(func(mock.Arguments) { order = append(order, "mark-synced") }).
		Return(nil)
	repo.On("GetByID", mock.Anything, int64(5)).Return(syncedBooking(), nil)

	svc := newTestService(repo, slots, client, ledger)
	b, err := svc.SyncBooking(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, []string{"create", "persist-job", "mark-synced"}, order)
	assert.Equal(t, int64(700123), *b.ServiceTitanJobNumber)
	ledger.AssertNotCalled(t, "RecordSyncFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncBooking_ExistingJobNumberMeansUpdateNeverCreate(t *testing.T) {
	repo := new(MockBookingRepo)
	slots := new(MockSlotReader)
	client := new(MockDispatchClient)
	ledger := new(MockLedger)

	repo.On("GetByID", mock.Anything, int64(5)).Return(syncedBooking(), nil)
	slots.On("GetByID", mock.Anything, int64(42)).Return(feedSlot(), nil)
	client.On("UpdateJob", mock.Anything, int64(700123), mock.Anything).
		Return(&servicetitan.Job{ID: 1, JobNumber: 700123, CustomerID: 88, AppointmentID: "A-1", Status: "Dispatched"}, nil)
	repo.On("MarkSynced", mock.Anything, int64(5), domain.BookingDispatched, "A-1").Return(nil)

	svc := newTestService(repo, slots, client, ledger)
	_, err := svc.SyncBooking(context.Background(), 5)

	require.NoError(t, err)
	client.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
}

func TestSyncBooking_RetryableFailure(t *testing.T) {
	repo := new(MockBookingRepo)
	slots := new(MockSlotReader)
	client := new(MockDispatchClient)
	ledger := new(MockLedger)

	apiErr := &servicetitan.APIError{Kind: servicetitan.FailureServer, StatusCode: 503, Message: "upstream unavailable"}

	repo.On("GetByID", mock.Anything, int64(5)).Return(pendingBooking(), nil)
	slots.On("GetByID", mock.Anything, int64(42)).Return(feedSlot(), nil)
	client.On("CreateJob", mock.Anything, mock.Anything).Return(nil, apiErr)
	repo.On("MarkSyncFailed", mock.Anything, int64(5), domain.BookingError, apiErr.Error()).Return(nil)
	ledger.On("RecordSyncFailure", mock.Anything, int64(5), OpCreateJob, apiErr, true).Return(nil)

	svc := newTestService(repo, slots, client, ledger)
	_, err := svc.SyncBooking(context.Background(), 5)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.True(t, syncErr.Retryable)
	repo.AssertCalled(t, "MarkSyncFailed", mock.Anything, int64(5), domain.BookingError, apiErr.Error())
	ledger.AssertExpectations(t)
}

func TestSyncBooking_PermanentFailure(t *testing.T) {
	repo := new(MockBookingRepo)
	slots := new(MockSlotReader)
	client := new(MockDispatchClient)
	ledger := new(MockLedger)

	apiErr := &servicetitan.APIError{Kind: servicetitan.FailureValidation, StatusCode: 422, Message: "missing campaign"}

	repo.On("GetByID", mock.Anything, int64(5)).Return(pendingBooking(), nil)
	slots.On("GetByID", mock.Anything, int64(42)).Return(feedSlot(), nil)
	client.On("CreateJob", mock.Anything, mock.Anything).Return(nil, apiErr)
	repo.On("MarkSyncFailed", mock.Anything, int64(5), domain.BookingFailed, apiErr.Error()).Return(nil)
	ledger.On("RecordSyncFailure", mock.Anything, int64(5), OpCreateJob, apiErr, false).Return(nil)

	svc := newTestService(repo, slots, client, ledger)
	_, err := svc.SyncBooking(context.Background(), 5)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.False(t, syncErr.Retryable)
}

func TestSyncBooking_CancelledBookingIsSkipped(t *testing.T) {
	repo := new(MockBookingRepo)
	client := new(MockDispatchClient)

	cancelled := pendingBooking()
	cancelled.Status = domain.BookingCancelled
	repo.On("GetByID", mock.Anything, int64(5)).Return(cancelled, nil)

	svc := newTestService(repo, new(MockSlotReader), client, new(MockLedger))
	_, err := svc.SyncBooking(context.Background(), 5)

	assert.ErrorIs(t, err, ErrStaleCancelled)
	client.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "UpdateJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncBooking_StoreFailureAfterCreateIsLedgered(t *testing.T) {
	repo := new(MockBookingRepo)
	slots := new(MockSlotReader)
	client := new(MockDispatchClient)
	ledger := new(MockLedger)

	storeErr := errors.New("driver: bad connection")

	repo.On("GetByID", mock.Anything, int64(5)).Return(pendingBooking(), nil)
	slots.On("GetByID", mock.Anything, int64(42)).Return(feedSlot(), nil)
	client.On("CreateJob", mock.Anything, mock.Anything).
		Return(&servicetitan.Job{ID: 1, JobNumber: 700123, CustomerID: 88, AppointmentID: "A-1", Status: "Scheduled"}, nil)
	repo.On("SetDispatchJob", mock.Anything, int64(5), int64(700123), int64(88)).Return(storeErr)
	ledger.On("RecordSyncFailure", mock.Anything, int64(5), OpSyncState, mock.Anything, true).Return(nil)

	svc := newTestService(repo, slots, client, ledger)
	_, err := svc.SyncBooking(context.Background(), 5)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.True(t, syncErr.Retryable)
	assert.Equal(t, OpSyncState, syncErr.Operation)
	ledger.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkSynced", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// A transient store hiccup during the very first sync must not strand the
// booking in pending: the ledger entry is what makes the scheduler pick
// it up again.
func TestSyncBooking_BookingLoadFailureIsLedgered(t *testing.T) {
	repo := new(MockBookingRepo)
	ledger := new(MockLedger)

	repo.On("GetByID", mock.Anything, int64(5)).Return(nil, errors.New("driver: bad connection"))
	ledger.On("RecordSyncFailure", mock.Anything, int64(5), OpSyncState, mock.Anything, true).Return(nil)

	svc := newTestService(repo, new(MockSlotReader), new(MockDispatchClient), ledger)
	_, err := svc.SyncBooking(context.Background(), 5)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.True(t, syncErr.Retryable)
	ledger.AssertExpectations(t)
}

func TestRetryBooking_StateFailureDoesNotRecordNewEntry(t *testing.T) {
	repo := new(MockBookingRepo)
	ledger := new(MockLedger)

	repo.On("GetByID", mock.Anything, int64(5)).Return(nil, errors.New("driver: bad connection"))

	svc := newTestService(repo, new(MockSlotReader), new(MockDispatchClient), ledger)
	_, err := svc.RetryBooking(context.Background(), 5)

	require.Error(t, err)
	ledger.AssertNotCalled(t, "RecordSyncFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryBooking_DoesNotRecordNewLedgerEntry(t *testing.T) {
	repo := new(MockBookingRepo)
	slots := new(MockSlotReader)
	client := new(MockDispatchClient)
	ledger := new(MockLedger)

	apiErr := &servicetitan.APIError{Kind: servicetitan.FailureTimeout, Message: "deadline exceeded"}

	repo.On("GetByID", mock.Anything, int64(5)).Return(pendingBooking(), nil)
	slots.On("GetByID", mock.Anything, int64(42)).Return(feedSlot(), nil)
	client.On("CreateJob", mock.Anything, mock.Anything).Return(nil, apiErr)
	repo.On("MarkSyncFailed", mock.Anything, int64(5), domain.BookingError, apiErr.Error()).Return(nil)

	svc := newTestService(repo, slots, client, ledger)
	_, err := svc.RetryBooking(context.Background(), 5)

	require.Error(t, err)
	ledger.AssertNotCalled(t, "RecordSyncFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
