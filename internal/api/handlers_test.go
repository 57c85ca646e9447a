package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/calendar"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/checkout"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/config"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/database"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/export"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

// day is 2026-03-02 00:00 UTC, a Monday.
var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func hour(h int) int64 {
	return day.Add(time.Duration(h) * time.Hour).UnixMilli()
}

type fakeCatalog struct {
	tenant    *models.Tenant
	bookables map[string]*models.Bookable
}

func (f *fakeCatalog) GetBookable(_ context.Context, _, id string) (*models.Bookable, error) {
	b, ok := f.bookables[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return b, nil
}

func (f *fakeCatalog) GetParents(_ context.Context, _, _ string) ([]*models.Bookable, error) {
	return nil, nil
}

func (f *fakeCatalog) GetDescendants(_ context.Context, _, _ string) ([]*models.Bookable, error) {
	return nil, nil
}

func (f *fakeCatalog) GetTicketsForEvent(_ context.Context, _, _ string) ([]*models.Bookable, error) {
	return nil, nil
}

func (f *fakeCatalog) ListBookables(_ context.Context, _ string) ([]*models.Bookable, error) {
	out := make([]*models.Bookable, 0, len(f.bookables))
	for _, b := range f.bookables {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeCatalog) GetTenant(_ context.Context, _ string) (*models.Tenant, error) {
	return f.tenant, nil
}

func (f *fakeCatalog) GetEvent(_ context.Context, _, _ string) (*models.Event, error) {
	return nil, nil
}

// fakeBookings keeps bookings in memory and answers the store queries by
// filtering.
type fakeBookings struct {
	byID map[string]*models.Booking
}

func newFakeBookings(bookings ...*models.Booking) *fakeBookings {
	f := &fakeBookings{byID: map[string]*models.Booking{}}
	for _, b := range bookings {
		f.byID[b.ID] = b
	}
	return f
}

func (f *fakeBookings) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	b, ok := f.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookings) GetOverlappingBookings(_ context.Context, tenantID, bookableID string, begin, end int64) ([]*models.Booking, error) {
	var out []*models.Booking
	for _, b := range f.byID {
		if b.TenantID == tenantID && !b.IsRejected && b.Overlaps(begin, end) && b.AmountFor(bookableID) > 0 {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookings) GetBookingsForBookable(_ context.Context, tenantID, bookableID string) ([]*models.Booking, error) {
	var out []*models.Booking
	for _, b := range f.byID {
		if b.TenantID == tenantID && !b.IsRejected && b.AmountFor(bookableID) > 0 {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookings) GetBookingsByRange(_ context.Context, tenantID string, begin, end int64) ([]*models.Booking, error) {
	var out []*models.Booking
	for _, b := range f.byID {
		if b.TenantID == tenantID && b.Overlaps(begin, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookings) CreateBooking(_ context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = fmt.Sprintf("bk-%d", len(f.byID)+1)
	}
	f.byID[booking.ID] = booking
	return nil
}

func (f *fakeBookings) UpdateBooking(_ context.Context, booking *models.Booking) error {
	if _, ok := f.byID[booking.ID]; !ok {
		return database.ErrNotFound
	}
	f.byID[booking.ID] = booking
	return nil
}

func (f *fakeBookings) CountLockerAssignments(_ context.Context, _, _, _ string, _, _ int64) (int64, error) {
	return 0, nil
}

func (f *fakeBookings) SaveLockerAssignment(_ context.Context, _ *models.LockerAssignment) error {
	return nil
}

func (f *fakeBookings) DeleteLockerAssignment(_ context.Context, _, _ string) error {
	return nil
}

type fakeCoupons struct {
	coupons map[string]*models.Coupon
}

func (f *fakeCoupons) GetCoupon(_ context.Context, _, code string) (*models.Coupon, error) {
	return f.coupons[code], nil
}

func (f *fakeCoupons) IncrementUsage(_ context.Context, _, code string) error {
	if _, ok := f.coupons[code]; !ok {
		return database.ErrNotFound
	}
	f.coupons[code].UsageCount++
	return nil
}

type apiEnv struct {
	server   *Server
	bookings *fakeBookings
	coupons  *fakeCoupons
}

func newAPIEnv(t *testing.T, bookables ...*models.Bookable) *apiEnv {
	t.Helper()
	catalog := &fakeCatalog{
		tenant:    &models.Tenant{ID: "t1", Name: "Guben"},
		bookables: map[string]*models.Bookable{},
	}
	for _, b := range bookables {
		catalog.bookables[b.ID] = b
	}

	bookings := newFakeBookings()
	coupons := &fakeCoupons{coupons: map[string]*models.Coupon{}}

	validator := checkout.NewValidator(catalog, bookings, catalog, catalog, nil, nil)
	checkouts := service.NewCheckoutService(validator, catalog, bookings, coupons, nil, nil, nil, nil)
	calculator := calendar.NewCalculator(validator, catalog, catalog, nil)
	exporter := export.NewExporter(catalog, catalog, bookings, t.TempDir(), nil)

	srv := NewServer(config.APIConfig{}, checkouts, validator, calculator, exporter, nil)
	return &apiEnv{server: srv, bookings: bookings, coupons: coupons}
}

func (e *apiEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if s, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(s))
	} else if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.server.Handler.ServeHTTP(rec, req)
	return rec
}

func room() *models.Bookable {
	return &models.Bookable{
		ID:                "room-1",
		TenantID:          "t1",
		Title:             "Seminar Room",
		IsBookable:        true,
		Amount:            int64Ptr(4),
		IsScheduleRelated: true,
		PriceType:         models.PricePerHour,
		PriceCategories:   []models.PriceCategory{{Name: "base", PriceEur: 10}},
		VATRate:           19,
	}
}

func checkoutBody(amount int64) service.CheckoutRequest {
	return service.CheckoutRequest{
		TenantID:  "t1",
		UserID:    "bob",
		TimeBegin: hour(10),
		TimeEnd:   hour(12),
		Items:     []service.CheckoutItem{{BookableID: "room-1", Amount: amount}},
	}
}

func TestHandleValidate(t *testing.T) {
	env := newAPIEnv(t, room())

	rec := env.do(http.MethodPost, "/api/v1/checkout/validate", checkoutBody(1))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []service.ItemChecks `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.True(t, body.Items[0].Available)
	assert.NotEmpty(t, body.Items[0].Results)
}

func TestHandleValidateBadRequests(t *testing.T) {
	env := newAPIEnv(t, room())

	rec := env.do(http.MethodPost, "/api/v1/checkout/validate", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/checkout/validate", service.CheckoutRequest{TenantID: "t1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "items is required")

	rec = env.do(http.MethodGet, "/api/v1/checkout/validate", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleCommit(t *testing.T) {
	env := newAPIEnv(t, room())

	rec := env.do(http.MethodPost, "/api/v1/checkout/commit", checkoutBody(1))
	require.Equal(t, http.StatusCreated, rec.Code)

	var result service.CommitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 20.0, result.RegularPriceEur)
	require.NotNil(t, result.Booking)
	assert.NotEmpty(t, result.Booking.ID)

	// The booking is persisted and visible to later queries.
	_, err := env.bookings.GetBooking(context.Background(), result.Booking.ID)
	assert.NoError(t, err)
}

func TestHandleCommitConflict(t *testing.T) {
	b := room()
	b.Amount = int64Ptr(1)
	env := newAPIEnv(t, b)

	rec := env.do(http.MethodPost, "/api/v1/checkout/commit", checkoutBody(2))
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Error  string             `json:"error"`
		Result models.CheckResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	assert.False(t, body.Result.Available)
	assert.Equal(t, models.CheckAvailability, body.Result.Type)
}

func TestHandleCommitInvalidCoupon(t *testing.T) {
	env := newAPIEnv(t, room())

	body := checkoutBody(1)
	body.CouponCode = "NOPE"
	rec := env.do(http.MethodPost, "/api/v1/checkout/commit", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOPE")
}

func TestHandleBookingsCancel(t *testing.T) {
	env := newAPIEnv(t, room())
	env.bookings.byID["bk1"] = &models.Booking{
		ID: "bk1", TenantID: "t1", UserID: "bob",
		TimeBegin: hour(10), TimeEnd: hour(12),
		Items: []models.BookingItem{{BookableID: "room-1", Amount: 1}},
	}

	rec := env.do(http.MethodDelete, "/api/v1/bookings/bk1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cancelled")
	assert.True(t, env.bookings.byID["bk1"].IsRejected)

	rec = env.do(http.MethodDelete, "/api/v1/bookings/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/bookings/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleBookingsReschedule(t *testing.T) {
	env := newAPIEnv(t, room())
	env.bookings.byID["bk1"] = &models.Booking{
		ID: "bk1", TenantID: "t1", UserID: "bob",
		TimeBegin: hour(10), TimeEnd: hour(12),
		Items: []models.BookingItem{{BookableID: "room-1", Amount: 1}},
	}

	rec := env.do(http.MethodPut, "/api/v1/bookings/bk1",
		map[string]int64{"time_begin": hour(14), "time_end": hour(16)})
	require.Equal(t, http.StatusOK, rec.Code)

	var booking models.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booking))
	assert.Equal(t, hour(14), booking.TimeBegin)
	assert.Equal(t, hour(16), booking.TimeEnd)

	rec = env.do(http.MethodPut, "/api/v1/bookings/bk1",
		map[string]int64{"time_begin": hour(16), "time_end": hour(14)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPatch, "/api/v1/bookings/bk1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleCalendar(t *testing.T) {
	env := newAPIEnv(t, room())

	path := fmt.Sprintf("/api/v1/calendar?tenant_id=t1&bookable_id=room-1&time_begin=%d&time_end=%d",
		hour(0), hour(24))
	rec := env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Segments []models.CalendarSegment `json:"segments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Segments)
	assert.Equal(t, hour(0), body.Segments[0].TimeBegin)

	rec = env.do(http.MethodGet, "/api/v1/calendar?bookable_id=room-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant_id is required")
}

func TestHandlePricePreview(t *testing.T) {
	env := newAPIEnv(t, room())
	env.coupons.coupons["TEN"] = &models.Coupon{
		Code: "TEN", TenantID: "t1", Type: models.CouponPercentage, Value: 10,
	}

	path := fmt.Sprintf("/api/v1/price-preview?tenant_id=t1&bookable_id=room-1&user_id=bob&time_begin=%d&time_end=%d&amount=1&coupon_code=TEN",
		hour(10), hour(12))
	rec := env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var preview models.PricePreview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, 20.0, preview.RegularPriceEur)
	assert.Equal(t, 18.0, preview.UserPriceEur)

	// A preview never consumes coupon usage.
	assert.Equal(t, int64(0), env.coupons.coupons["TEN"].UsageCount)
}

func TestHandleOccupancy(t *testing.T) {
	env := newAPIEnv(t, room())
	env.bookings.byID["bk1"] = &models.Booking{
		ID: "bk1", TenantID: "t1",
		TimeBegin: hour(10), TimeEnd: hour(12),
		Items: []models.BookingItem{{BookableID: "room-1", Amount: 3}},
	}

	path := fmt.Sprintf("/api/v1/occupancy?tenant_id=t1&bookable_id=room-1&time_begin=%d&time_end=%d&amount=1",
		hour(10), hour(12))
	rec := env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.CheckResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Available)
	require.NotNil(t, result.Occupancy)
	assert.Equal(t, int64(3), result.Occupancy.Booked)
	assert.Equal(t, int64(1), result.Occupancy.Remaining)

	// Over capacity still answers 200 with the structured result.
	path = fmt.Sprintf("/api/v1/occupancy?tenant_id=t1&bookable_id=room-1&time_begin=%d&time_end=%d&amount=2",
		hour(10), hour(12))
	rec = env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Available)
}

func TestHandleExport(t *testing.T) {
	env := newAPIEnv(t, room())

	rec := env.do(http.MethodPost, "/api/v1/exports/occupancy", map[string]string{
		"tenant_id":  "t1",
		"start_date": "2026-03-02",
		"end_date":   "2026-03-04",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, strings.HasSuffix(body["file_path"], ".xlsx"))
	_, err := os.Stat(body["file_path"])
	assert.NoError(t, err)
}

func TestHandleExportBadDates(t *testing.T) {
	env := newAPIEnv(t, room())

	rec := env.do(http.MethodPost, "/api/v1/exports/occupancy", map[string]string{
		"tenant_id":  "t1",
		"start_date": "02.03.2026",
		"end_date":   "2026-03-04",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/exports/occupancy", map[string]string{
		"tenant_id":  "t1",
		"start_date": "2026-03-04",
		"end_date":   "2026-03-02",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	env := newAPIEnv(t, room())
	rec := env.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
