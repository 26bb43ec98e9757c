package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldbook/internal/config"
	"fieldbook/internal/database"
	"fieldbook/internal/domain"
	"fieldbook/internal/middleware"
	"fieldbook/internal/modules/booking"
	"fieldbook/internal/modules/errorlog"
	syncmod "fieldbook/internal/modules/sync"
	"fieldbook/internal/repository"
	"fieldbook/internal/servicetitan"
)

const internalToken = "test-internal-token"

// fakeDispatch stands in for the ServiceTitan API: a token endpoint plus the
// job-planning routes, with a switch to make every job call fail.
type fakeDispatch struct {
	srv     *httptest.Server
	fail    atomic.Bool
	jobSeq  atomic.Int64
	created atomic.Int64
}

func newFakeDispatch() *fakeDispatch {
	f := &fakeDispatch{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
			return
		}
		if f.fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"title":"upstream unavailable"}`))
			return
		}
		if r.Method == http.MethodPost {
			f.created.Add(1)
		}
		n := f.jobSeq.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                 n,
			"jobNumber":          700000 + n,
			"customerId":         88,
			"firstAppointmentId": fmt.Sprintf("A-%d", n),
			"jobStatus":          "Scheduled",
		})
	}))
	return f
}

type app struct {
	router *gin.Engine
	slots  *repository.SlotRepository
	st     *fakeDispatch
}

// newApp wires the full stack the way the api binary does, swapping in a
// temp SQLite database, the fake dispatch server and a synchronous sync
// trigger so tests see deterministic ordering.
func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	st := newFakeDispatch()
	t.Cleanup(st.srv.Close)

	bookingRepo := repository.NewBookingRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	errorLogRepo := repository.NewErrorLogRepository(db)

	ledger := errorlog.NewService(errorLogRepo)
	stClient := servicetitan.NewClient(config.ServiceTitan{
		BaseURL:      st.srv.URL,
		AuthURL:      st.srv.URL + "/token",
		TenantID:     "t-100",
		ClientID:     "cid",
		ClientSecret: "secret",
		AppKey:       "app-key",
		Timeout:      5 * time.Second,
	})
	syncService := syncmod.NewService(bookingRepo, slotRepo, stClient, ledger, nil, 5*time.Second, nil)

	bookingService := booking.NewService(bookingRepo, slotRepo, syncmod.NewInlineTrigger(syncService))

	r := gin.New()
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorLogger())

	v1 := r.Group("/api/v1")
	booking.NewHandler(bookingService).RegisterRoutes(v1)

	internal := v1.Group("/internal")
	internal.Use(middleware.InternalTokenAuth(internalToken))
	errorlog.NewHandler(ledger).RegisterRoutes(internal)

	return &app{router: r, slots: slotRepo, st: st}
}

func (a *app) seedSlot(t *testing.T) *domain.Slot {
	t.Helper()
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	s := &domain.Slot{StartsAt: start, EndsAt: start.Add(time.Hour), Zone: "north"}
	require.NoError(t, a.slots.Create(t.Context(), s))
	return s
}

func (a *app) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func reserveBody(slotID int64) map[string]any {
	return map[string]any{
		"slot_id":        slotID,
		"customer_name":  "Dana Fox",
		"customer_phone": "+15550100",
		"summary":        "water heater replacement",
	}
}

func bookingFrom(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data envelope: %v", resp)
	b, ok := data["booking"].(map[string]any)
	require.True(t, ok)
	return b
}

func TestReserveSyncsToDispatch(t *testing.T) {
	a := newApp(t)
	slot := a.seedSlot(t)

	w, resp := a.do(t, http.MethodPost, "/api/v1/bookings", reserveBody(slot.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, resp["success"])

	id := int64(bookingFrom(t, resp)["id"].(float64))

	// The admission response never waits for sync state; the polling
	// endpoint carries it.
	w, resp = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", id), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	b := bookingFrom(t, resp)
	assert.Equal(t, string(domain.BookingScheduled), b["status"])
	assert.Equal(t, float64(700001), b["service_titan_job_number"])
	assert.NotContains(t, b, "service_titan_error")
	assert.Equal(t, int64(1), a.st.created.Load())
}

func TestContestedSlotAdmitsExactlyOne(t *testing.T) {
	a := newApp(t)
	slot := a.seedSlot(t)

	w, _ := a.do(t, http.MethodPost, "/api/v1/bookings", reserveBody(slot.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := a.do(t, http.MethodPost, "/api/v1/bookings", reserveBody(slot.ID), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, resp["success"])
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, "SLOT_CONFLICT", errObj["code"])
}

func TestCancelFreesSlotForRebooking(t *testing.T) {
	a := newApp(t)
	slot := a.seedSlot(t)

	w, resp := a.do(t, http.MethodPost, "/api/v1/bookings", reserveBody(slot.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(bookingFrom(t, resp)["id"].(float64))

	w, resp = a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", id), map[string]any{"reason": "customer rescheduled"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	b := bookingFrom(t, resp)
	assert.Equal(t, string(domain.BookingCancelled), b["status"])
	assert.Equal(t, "customer rescheduled", b["cancellation_reason"])

	w, _ = a.do(t, http.MethodPost, "/api/v1/bookings", reserveBody(slot.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code, "cancelled booking must free the slot")
}

func TestReserveValidationDetailsNameFields(t *testing.T) {
	a := newApp(t)
	slot := a.seedSlot(t)

	body := reserveBody(slot.ID)
	body["customer_email"] = "not-an-email"

	w, resp := a.do(t, http.MethodPost, "/api/v1/bookings", body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	errObj := resp["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	details := errObj["details"].(map[string]any)
	assert.Contains(t, details, "CustomerEmail")
}

func TestUnknownSlotRejected(t *testing.T) {
	a := newApp(t)

	w, resp := a.do(t, http.MethodPost, "/api/v1/bookings", reserveBody(9999), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
}

func TestDispatchFailureNeverBlocksAdmission(t *testing.T) {
	a := newApp(t)
	slot := a.seedSlot(t)
	a.st.fail.Store(true)

	w, resp := a.do(t, http.MethodPost, "/api/v1/bookings", reserveBody(slot.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code, "admission must not depend on the dispatch system")
	id := int64(bookingFrom(t, resp)["id"].(float64))

	w, resp = a.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", id), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	b := bookingFrom(t, resp)
	assert.Equal(t, string(domain.BookingError), b["status"])
	assert.Contains(t, b, "service_titan_error")

	// The failure lands in the error ledger, visible through the
	// internal dashboard API.
	auth := map[string]string{"Authorization": "Bearer " + internalToken}
	w, resp = a.do(t, http.MethodGet, "/api/v1/internal/errors?resolved=false", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)

	entries := resp["data"].(map[string]any)["errors"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "sync_error", entry["error_type"])
	assert.Equal(t, "create_job", entry["operation"])
	assert.Equal(t, "servicetitan", entry["service_name"])
	assert.Equal(t, true, entry["retryable"])
	assert.Equal(t, float64(0), entry["retry_count"])

	entryID := int64(entry["id"].(float64))
	w, _ = a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/internal/errors/%d/resolve", entryID), map[string]any{"resolved_by": "ops"}, auth)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = a.do(t, http.MethodGet, "/api/v1/internal/errors?resolved=false", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp["data"].(map[string]any)["errors"])
}

func TestInternalEndpointsRequireToken(t *testing.T) {
	a := newApp(t)

	w, _ := a.do(t, http.MethodGet, "/api/v1/internal/errors", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = a.do(t, http.MethodGet, "/api/v1/internal/errors", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListSlotsShowsBookedState(t *testing.T) {
	a := newApp(t)
	slot := a.seedSlot(t)

	w, resp := a.do(t, http.MethodGet, "/api/v1/slots", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	slots := resp["data"].(map[string]any)["slots"].([]any)
	require.Len(t, slots, 1)
	assert.Equal(t, false, slots[0].(map[string]any)["booked"])

	w, _ = a.do(t, http.MethodPost, "/api/v1/bookings", reserveBody(slot.ID), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp = a.do(t, http.MethodGet, "/api/v1/slots", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	slots = resp["data"].(map[string]any)["slots"].([]any)
	require.Len(t, slots, 1)
	assert.Equal(t, true, slots[0].(map[string]any)["booked"])
}
